// Package flip maps discrete page-turn operations onto the current page
// index with boundary clamping. Indexing is pure arithmetic; the visual
// transition belongs to the rendering surface.
package flip

import "fmt"

// Key names for keyboard navigation.
const (
	KeyPrev = "ArrowLeft"
	KeyNext = "ArrowRight"
)

// Navigator tracks the current position in a document. On mobile the
// index counts single pages in [0, N-1]; on desktop it counts two-page
// spreads in [0, ceil(N/2)-1].
type Navigator struct {
	pageCount int
	mobile    bool
	index     int
}

func NewNavigator(pageCount int, mobile bool) *Navigator {
	if pageCount < 0 {
		pageCount = 0
	}
	return &Navigator{pageCount: pageCount, mobile: mobile}
}

// Index is the current position.
func (n *Navigator) Index() int { return n.index }

// lastIndex is the highest reachable position.
func (n *Navigator) lastIndex() int {
	if n.pageCount == 0 {
		return 0
	}
	if n.mobile {
		return n.pageCount - 1
	}
	return (n.pageCount+1)/2 - 1
}

// CanPrev reports whether Prev would move.
func (n *Navigator) CanPrev() bool { return n.index > 0 }

// CanNext reports whether Next would move.
func (n *Navigator) CanNext() bool { return n.index < n.lastIndex() }

// Prev turns back one position; a no-op at the front cover.
func (n *Navigator) Prev() int {
	if n.CanPrev() {
		n.index--
	}
	return n.index
}

// Next turns forward one position; a no-op at the last valid index.
func (n *Navigator) Next() int {
	if n.CanNext() {
		n.index++
	}
	return n.index
}

// OnFlip records a position change driven by the rendering surface
// (swipe, corner drag), clamped into the valid range.
func (n *Navigator) OnFlip(newIndex int) int {
	switch {
	case newIndex < 0:
		n.index = 0
	case newIndex > n.lastIndex():
		n.index = n.lastIndex()
	default:
		n.index = newIndex
	}
	return n.index
}

// Key maps a key press to a turn; unknown keys are ignored.
func (n *Navigator) Key(key string) int {
	switch key {
	case KeyPrev:
		return n.Prev()
	case KeyNext:
		return n.Next()
	}
	return n.index
}

// VisiblePages lists the page numbers (1-based) shown at the current
// position: one on mobile, up to two on a desktop spread.
func (n *Navigator) VisiblePages() []int {
	if n.pageCount == 0 {
		return nil
	}
	if n.mobile {
		return []int{n.index + 1}
	}
	first := n.index*2 + 1
	if first >= n.pageCount {
		return []int{n.pageCount}
	}
	second := first + 1
	if second > n.pageCount {
		return []int{first}
	}
	return []int{first, second}
}

// Label renders the footer position indicator, e.g. "3-4 / 12". Always a
// range, so a single visible page reads "3-3 / 12".
func (n *Navigator) Label() string {
	visible := n.VisiblePages()
	if len(visible) == 0 {
		return ""
	}
	first := visible[0]
	last := visible[len(visible)-1]
	return fmt.Sprintf("%d-%d / %d", first, last, n.pageCount)
}
