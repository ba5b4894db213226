package viewer

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/layout"
	"github.com/pagecurl/flipbookd/internal/raster"
)

type fakeDecoder struct {
	pages    int
	width    int
	height   int
	failPage int
}

func (d *fakeDecoder) Open(data []byte) (raster.Document, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	return &fakeDocument{dec: d}, nil
}

type fakeDocument struct {
	dec *fakeDecoder
}

func (doc *fakeDocument) PageCount() int { return doc.dec.pages }

func (doc *fakeDocument) Render(page int, scale float64) (image.Image, error) {
	if page == doc.dec.failPage {
		return nil, errors.New("damaged page stream")
	}
	return image.NewGray(image.Rect(0, 0, doc.dec.width, doc.dec.height)), nil
}

func (doc *fakeDocument) Close() error { return nil }

func newTestSession(t *testing.T, dec *fakeDecoder) (*Session, *flipbook.Document) {
	t.Helper()

	blobs := blob.NewMemoryStore()
	blobs.Put("blob-0001.pdf", []byte("%PDF-1.4 fixture"))
	doc := &flipbook.Document{
		ID:         "fb-0001",
		StorageRef: "blob-0001.pdf",
		Title:      "brochure.pdf",
		PageCount:  dec.pages,
	}
	return NewSession(blobs, dec, raster.Options{}, nil), doc
}

func TestOpenSurfacesAllPages(t *testing.T) {
	dec := &fakeDecoder{pages: 6, width: 100, height: 140}
	s, doc := newTestSession(t, dec)

	desktop := Measurement{ContainerWidth: 1600, ContainerHeight: 900}
	if err := s.Open(context.Background(), doc, desktop); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !s.Ready() {
		t.Fatal("session must be ready after a clean run")
	}
	pages := s.Pages()
	if len(pages) != 6 {
		t.Fatalf("len(Pages) = %d, want 6", len(pages))
	}
	for i, p := range pages {
		if p.Number != i+1 {
			t.Fatalf("pages[%d].Number = %d, want %d", i, p.Number, i+1)
		}
	}
	if got := s.Progress(); got != 100 {
		t.Fatalf("Progress = %d, want 100", got)
	}
	if got := s.AspectRatio(); got != 1.4 {
		t.Fatalf("AspectRatio = %v, want 1.4", got)
	}

	nav := s.Navigator()
	if nav == nil {
		t.Fatal("Navigator is nil after Open")
	}
	// 6 desktop pages are spreads 0..2.
	nav.OnFlip(99)
	if nav.Index() != 2 {
		t.Fatalf("navigator last index = %d, want 2", nav.Index())
	}
}

func TestOpenRecomputesFrameFromPageOne(t *testing.T) {
	// Square pages: ratio 1.0 instead of the assumed 1.4 portrait.
	dec := &fakeDecoder{pages: 2, width: 120, height: 120}
	s, doc := newTestSession(t, dec)

	m := Measurement{ContainerWidth: 1600, ContainerHeight: 900}
	if err := s.Open(context.Background(), doc, m); err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := layout.Compute(layout.Input{ContainerWidth: 1600, ContainerHeight: 900, AspectRatio: 1.0})
	if s.Frame() != want {
		t.Fatalf("Frame = %+v, want recompute with discovered ratio %+v", s.Frame(), want)
	}
}

func TestOpenFailureSurfacesNothing(t *testing.T) {
	dec := &fakeDecoder{pages: 6, width: 100, height: 140, failPage: 4}
	s, doc := newTestSession(t, dec)

	err := s.Open(context.Background(), doc, Measurement{ContainerWidth: 1600, ContainerHeight: 900})
	var decodeErr *flipbook.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Open error = %v, want DecodeError", err)
	}
	if decodeErr.Page != 4 {
		t.Fatalf("DecodeError.Page = %d, want 4", decodeErr.Page)
	}
	if s.Ready() || s.Pages() != nil {
		t.Fatalf("a halted run must surface no pages, got ready=%v pages=%d", s.Ready(), len(s.Pages()))
	}
	if s.Navigator() != nil {
		t.Fatal("navigator must stay nil after a halted run")
	}
}

func TestOpenMissingBlob(t *testing.T) {
	dec := &fakeDecoder{pages: 2, width: 100, height: 140}
	s, doc := newTestSession(t, dec)
	doc.StorageRef = "blob-gone.pdf"

	if err := s.Open(context.Background(), doc, Measurement{ContainerWidth: 375, ContainerHeight: 667}); err == nil {
		t.Fatal("Open with a missing blob must fail")
	}
	if s.Ready() {
		t.Fatal("session must not be ready")
	}
}

func TestResizeRebuildsNavigatorAcrossBreakpoint(t *testing.T) {
	dec := &fakeDecoder{pages: 10, width: 100, height: 140}
	s, doc := newTestSession(t, dec)

	if err := s.Open(context.Background(), doc, Measurement{ContainerWidth: 1600, ContainerHeight: 900}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Navigator().OnFlip(3)

	frame := s.Resize(Measurement{ContainerWidth: 375, ContainerHeight: 667})
	if frame.BookWidth != frame.PageWidth {
		t.Fatalf("mobile frame must be single-page wide, got book=%d page=%d", frame.BookWidth, frame.PageWidth)
	}
	nav := s.Navigator()
	if nav.Index() != 0 {
		t.Fatalf("crossing the breakpoint must reset to the front, index = %d", nav.Index())
	}
	nav.OnFlip(99)
	if nav.Index() != 9 {
		t.Fatalf("mobile last index = %d, want 9", nav.Index())
	}
}

func TestResizeSameClassKeepsPosition(t *testing.T) {
	dec := &fakeDecoder{pages: 10, width: 100, height: 140}
	s, doc := newTestSession(t, dec)

	if err := s.Open(context.Background(), doc, Measurement{ContainerWidth: 1600, ContainerHeight: 900}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Navigator().OnFlip(3)

	s.Resize(Measurement{ContainerWidth: 1400, ContainerHeight: 800})
	if got := s.Navigator().Index(); got != 3 {
		t.Fatalf("same-class resize moved the index to %d, want 3", got)
	}
}
