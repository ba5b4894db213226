// Package raster converts a PDF byte source into an ascending sequence of
// encoded page bitmaps. Every page is rendered at one fixed scale and
// encoded as JPEG at one fixed quality; the page aspect ratio is
// discovered from page 1 and drives all layout for the document.
//
// The produced sequence is finite, lazy and non-restartable: pages arrive
// over a bounded queue as they are rendered, and a failure on any page
// aborts the whole run. Consumers that promise an all-or-nothing flipbook
// must discard partial output when Err reports a failure.
package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
)

// Decoder opens PDF bytes into a renderable document.
type Decoder interface {
	Open(data []byte) (Document, error)
}

// Document is an open PDF. Pages are numbered 1..PageCount.
type Document interface {
	PageCount() int
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// Page is one rendered, encoded page bitmap.
type Page struct {
	Number int
	Data   []byte // JPEG
	Width  int    // rendered pixels
	Height int
}

// Options tune a Pipeline. Zero values select the fixed product settings.
type Options struct {
	Scale   float64 // render scale factor, default config.RenderScale
	Quality int     // JPEG quality, default config.JPEGQuality
	Workers int     // parallel decoders; <=1 means strictly sequential

	// QueueDepth bounds how many rendered pages may wait for the
	// consumer, capping peak memory. Default 4.
	QueueDepth int

	// Progress, when set, receives round(i/N*100) after page i is
	// delivered.
	Progress func(percent int)

	Logger *slog.Logger
}

// Pipeline renders documents with one fixed set of options.
type Pipeline struct {
	dec  Decoder
	opts Options
}

func New(dec Decoder, opts Options) *Pipeline {
	if opts.Scale == 0 {
		opts.Scale = config.RenderScale
	}
	if opts.Quality == 0 {
		opts.Quality = config.JPEGQuality
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{dec: dec, opts: opts}
}

// Sequence is one in-flight rasterization run. Pages arrive in ascending
// order on Pages; once the channel closes, Err reports whether the run
// completed or aborted.
type Sequence struct {
	pages chan Page
	count int

	// ratio is written before page 1 is sent; readable after page 1 has
	// been received, or at any time once the channel closed.
	ratio    float64
	ratioSet bool

	err error
}

// PageCount is the declared page total, known from the first decode step.
func (s *Sequence) PageCount() int { return s.count }

// Pages delivers the rendered pages in ascending order. The channel is
// closed when the run finishes or aborts.
func (s *Sequence) Pages() <-chan Page { return s.pages }

// Err reports why the sequence ended early. Valid after Pages closes.
func (s *Sequence) Err() error { return s.err }

// AspectRatio returns height/width of page 1, once discovered.
func (s *Sequence) AspectRatio() (float64, bool) { return s.ratio, s.ratioSet }

// Run starts rendering and returns the live sequence. Each call decodes
// from scratch; a Sequence cannot be rewound or resumed. Opening failures
// are reported immediately rather than through the sequence.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Sequence, error) {
	doc, err := p.dec.Open(data)
	if err != nil {
		return nil, &flipbook.DecodeError{Err: err}
	}
	count := doc.PageCount()
	if count < 1 {
		_ = doc.Close()
		return nil, &flipbook.DecodeError{Err: errors.New("document has no pages")}
	}

	seq := &Sequence{
		pages: make(chan Page, p.opts.QueueDepth),
		count: count,
	}
	if p.opts.Workers > 1 {
		go p.runParallel(ctx, doc, seq)
	} else {
		go p.runSequential(ctx, doc, seq)
	}
	return seq, nil
}

// runSequential is the documented execution model: page i+1 does not
// start until page i's bitmap is produced.
func (p *Pipeline) runSequential(ctx context.Context, doc Document, seq *Sequence) {
	defer close(seq.pages)
	defer doc.Close()

	for i := 1; i <= seq.count; i++ {
		page, err := p.renderPage(doc, i)
		if err != nil {
			p.abort(seq, i, err)
			return
		}
		if i == 1 {
			seq.ratio = float64(page.Height) / float64(page.Width)
			seq.ratioSet = true
		}
		if !p.deliver(ctx, seq, page) {
			return
		}
	}
}

// runParallel decodes pages concurrently but still assembles and delivers
// them in ascending order, preserving the sequential model's observable
// behavior: page 1 resolves aspect ratio first, progress counts delivered
// pages.
func (p *Pipeline) runParallel(ctx context.Context, doc Document, seq *Sequence) {
	defer close(seq.pages)

	type result struct {
		page Page
		err  error
	}
	results := make([]chan result, seq.count)
	for i := range results {
		results[i] = make(chan result, 1)
	}

	// Workers run under their own group context: the first render failure
	// cancels the group, and tasks that have not started decoding yet post
	// the cancellation instead of touching the document. Every task posts
	// exactly one buffered result, so the emitter can stop early without
	// stranding a worker, and the document is closed only after the last
	// worker has returned — never while a Render is in flight.
	//
	// failed holds the first real render failure. It is sent before the
	// failing task returns, and the group cancels only after that return,
	// so any cancelled result the emitter sees has the failure already
	// recorded.
	failed := make(chan *flipbook.DecodeError, 1)
	g, workCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	go func() {
		for i := 1; i <= seq.count; i++ {
			page := i
			g.Go(func() error {
				if err := workCtx.Err(); err != nil {
					results[page-1] <- result{err: err}
					return err
				}
				rendered, err := p.renderPage(doc, page)
				if err != nil {
					select {
					case failed <- &flipbook.DecodeError{Page: page, Err: err}:
					default:
					}
				}
				results[page-1] <- result{page: rendered, err: err}
				return err
			})
		}
		_ = g.Wait()
		_ = doc.Close()
	}()

	for i := 1; i <= seq.count; i++ {
		var res result
		select {
		case res = <-results[i-1]:
		case <-ctx.Done():
			seq.err = ctx.Err()
			return
		}
		if res.err != nil {
			if ctx.Err() != nil {
				seq.err = ctx.Err()
				return
			}
			page, err := i, res.err
			if errors.Is(err, context.Canceled) {
				// This task was stopped by another page's failure;
				// report that failure instead.
				select {
				case derr := <-failed:
					page, err = derr.Page, derr.Err
				default:
				}
			}
			p.abort(seq, page, err)
			return
		}
		if i == 1 {
			seq.ratio = float64(res.page.Height) / float64(res.page.Width)
			seq.ratioSet = true
		}
		if !p.deliver(ctx, seq, res.page) {
			return
		}
	}
}

func (p *Pipeline) renderPage(doc Document, page int) (Page, error) {
	img, err := doc.Render(page, p.opts.Scale)
	if err != nil {
		return Page{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.Quality}); err != nil {
		return Page{}, err
	}
	bounds := img.Bounds()
	return Page{
		Number: page,
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// deliver sends a finished page and reports progress. Returns false when
// the consumer abandoned the run.
func (p *Pipeline) deliver(ctx context.Context, seq *Sequence, page Page) bool {
	select {
	case seq.pages <- page:
	case <-ctx.Done():
		seq.err = ctx.Err()
		return false
	}
	if p.opts.Progress != nil {
		p.opts.Progress(int(math.Round(float64(page.Number) / float64(seq.count) * 100)))
	}
	return true
}

// abort records the failure and logs the halt. The sequence's channel is
// closed by the caller's defer; no partial flipbook is surfaced.
func (p *Pipeline) abort(seq *Sequence, page int, err error) {
	seq.err = &flipbook.DecodeError{Page: page, Err: err}
	p.opts.Logger.Error("Rasterization aborted.", "page", page, "pageCount", seq.count, "error", err)
}
