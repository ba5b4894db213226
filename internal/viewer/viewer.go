// Package viewer assembles a viewing session for one flipbook: it pulls
// the stored PDF, runs the rasterization pipeline, sizes the frame and
// drives navigation. Pages are surfaced all-or-nothing; a decode failure
// anywhere leaves the session with zero visible pages.
package viewer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/flip"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/layout"
	"github.com/pagecurl/flipbookd/internal/raster"
)

// Measurement is one consistent read of the container.
type Measurement struct {
	ContainerWidth  float64
	ContainerHeight float64
}

// Session is the viewing state for one document. Not safe for concurrent
// mutation; Progress alone may be polled while Open runs.
type Session struct {
	blobs    blob.Store
	pipeline *raster.Pipeline
	log      *slog.Logger

	progress atomic.Int32

	ready  bool
	pages  []raster.Page
	count  int
	ratio  float64
	mobile bool
	frame  layout.Frame
	nav    *flip.Navigator
}

func NewSession(blobs blob.Store, dec raster.Decoder, opts raster.Options, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{blobs: blobs, log: log}

	userProgress := opts.Progress
	opts.Progress = func(pct int) {
		s.progress.Store(int32(pct))
		if userProgress != nil {
			userProgress(pct)
		}
	}
	if opts.Logger == nil {
		opts.Logger = log
	}
	s.pipeline = raster.New(dec, opts)
	return s
}

// Open loads and rasterizes the document, blocking until every page is
// rendered or the run aborts. On failure no pages are surfaced.
func (s *Session) Open(ctx context.Context, doc *flipbook.Document, m Measurement) error {
	logCtx := s.log.With("flipbookId", doc.ID, "storageRef", doc.StorageRef)

	s.ready = false
	s.pages = nil
	s.progress.Store(0)
	s.mobile = layout.IsMobile(m.ContainerWidth)
	s.ratio = 0
	s.frame = s.computeFrame(m)

	rc, err := s.blobs.Open(ctx, doc.StorageRef)
	if err != nil {
		logCtx.Error("Failed to open stored PDF.", "error", err)
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		logCtx.Error("Failed to read stored PDF.", "error", err)
		return fmt.Errorf("failed to read stored PDF: %w", err)
	}

	seq, err := s.pipeline.Run(ctx, data)
	if err != nil {
		logCtx.Error("Failed to start rasterization.", "error", err)
		return err
	}

	var collected []raster.Page
	for page := range seq.Pages() {
		if page.Number == 1 {
			if ratio, ok := seq.AspectRatio(); ok {
				s.ratio = ratio
				s.frame = s.computeFrame(m)
			}
		}
		collected = append(collected, page)
	}
	if err := seq.Err(); err != nil {
		// The pipeline already logged the halting page; the session just
		// stays in the loading-halt state with nothing visible.
		return err
	}
	if len(collected) != seq.PageCount() {
		return fmt.Errorf("rendered %d of %d pages", len(collected), seq.PageCount())
	}

	s.pages = collected
	s.count = seq.PageCount()
	s.nav = flip.NewNavigator(s.count, s.mobile)
	s.ready = true
	logCtx.Info("Flipbook ready.", "pageCount", s.count)
	return nil
}

// Ready reports whether the full page sequence is visible.
func (s *Session) Ready() bool { return s.ready }

// Pages returns the rendered bitmaps, or nil while loading or halted.
func (s *Session) Pages() []raster.Page { return s.pages }

// PageCount is the declared total, known once rasterization started.
func (s *Session) PageCount() int { return s.count }

// Progress is the rasterization percentage, pollable during Open.
func (s *Session) Progress() int { return int(s.progress.Load()) }

// Frame is the current viewer geometry.
func (s *Session) Frame() layout.Frame { return s.frame }

// Navigator exposes page turning; nil until the session is ready.
func (s *Session) Navigator() *flip.Navigator { return s.nav }

// AspectRatio reports the discovered page geometry, zero until page 1
// has been decoded.
func (s *Session) AspectRatio() float64 { return s.ratio }

// Resize recomputes the frame for a fresh measurement. Crossing the
// device-class breakpoint rebuilds the navigator at the front cover,
// since spread indices don't map onto page indices.
func (s *Session) Resize(m Measurement) layout.Frame {
	mobile := layout.IsMobile(m.ContainerWidth)
	if mobile != s.mobile {
		s.mobile = mobile
		if s.ready {
			s.nav = flip.NewNavigator(s.count, mobile)
		}
	}
	s.frame = s.computeFrame(m)
	return s.frame
}

func (s *Session) computeFrame(m Measurement) layout.Frame {
	return layout.Compute(layout.Input{
		ContainerWidth:  m.ContainerWidth,
		ContainerHeight: m.ContainerHeight,
		Mobile:          s.mobile,
		AspectRatio:     s.ratio,
	})
}
