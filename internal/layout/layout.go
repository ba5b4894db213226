// Package layout computes the viewer geometry: page, book and frame pixel
// dimensions derived from the container size, device class and the page
// aspect ratio. Compute is a pure function; the caller re-invokes it on
// every resize, orientation change or aspect-ratio discovery.
package layout

import "math"

const (
	// DefaultAspectRatio is assumed portrait geometry used until page 1
	// has been decoded, so the frame doesn't thrash while data loads.
	DefaultAspectRatio = 1.4

	// MobileBreakpoint is the container width below which the viewer
	// shows a single page instead of a two-page spread.
	MobileBreakpoint = 768

	framePadding = 12
	frameBorder  = 2

	// frameInset is the fixed border-plus-padding the frame adds around
	// the book on every side pair.
	frameInset = framePadding*2 + frameBorder*2
)

// Input is one consistent set of measurements. Mobile must be evaluated
// from the same measurement pass as the container dimensions; mixing a
// stale device class with fresh dimensions produces frames for a viewport
// that never existed.
type Input struct {
	ContainerWidth  float64
	ContainerHeight float64
	Mobile          bool

	// AspectRatio is page height divided by width; zero means unknown
	// and selects DefaultAspectRatio.
	AspectRatio float64
}

// Frame is the computed viewer geometry, in whole pixels.
type Frame struct {
	PageWidth   int
	PageHeight  int
	BookWidth   int
	BookHeight  int
	FrameWidth  int
	FrameHeight int
}

// IsMobile classifies the device from the container width.
func IsMobile(containerWidth float64) bool {
	return containerWidth < MobileBreakpoint
}

// viewportPadding is the horizontal and vertical breathing room between
// the container edge and the frame.
func viewportPadding(mobile bool) (x, y float64) {
	if mobile {
		return 20, 24
	}
	return 40, 56
}

// Compute derives the frame geometry. Width-first: each page takes the
// available width (halved for a desktop spread); when the resulting
// height overflows, height becomes the binding constraint and width is
// re-derived from it instead.
func Compute(in Input) Frame {
	ratio := in.AspectRatio
	if ratio <= 0 {
		ratio = DefaultAspectRatio
	}

	padX, padY := viewportPadding(in.Mobile)
	availableWidth := math.Max(0, in.ContainerWidth-padX*2-frameInset)
	availableHeight := math.Max(0, in.ContainerHeight-padY*2-frameInset)

	maxPageWidth := availableWidth
	if !in.Mobile {
		maxPageWidth = availableWidth / 2
	}

	width := maxPageWidth
	height := width * ratio
	if height > availableHeight {
		height = availableHeight
		width = height / ratio
	}

	pageWidth := int(math.Floor(width))
	pageHeight := int(math.Floor(height))

	bookWidth := pageWidth
	if !in.Mobile {
		bookWidth = pageWidth * 2
	}

	return Frame{
		PageWidth:   pageWidth,
		PageHeight:  pageHeight,
		BookWidth:   bookWidth,
		BookHeight:  pageHeight,
		FrameWidth:  bookWidth + frameInset,
		FrameHeight: pageHeight + frameInset,
	}
}
