// Package vlist renders long fixed-height lists by materializing only the rows that
// intersect the scroll viewport plus an overscan margin.
package vlist

const (
	// MessageOverscan suits the chat transcript.
	MessageOverscan = 5
	// ConversationOverscan is larger because the inbox is scrolled faster.
	ConversationOverscan = 10
)

// Config describes the list geometry. Heights share one unit: pixels in a browser,
// terminal rows here.
type Config struct {
	ItemHeight      int
	ContainerHeight int
	Overscan        int
}

func (c Config) normalized() Config {
	if c.ItemHeight < 1 {
		c.ItemHeight = 1
	}
	if c.ContainerHeight < 0 {
		c.ContainerHeight = 0
	}
	if c.Overscan < 0 {
		c.Overscan = 0
	}
	return c
}

// Window is the inclusive index range to render. Offset is where row Start sits inside
// a spacer of TotalHeight. An empty list yields End == -1.
type Window struct {
	Start       int
	End         int
	Offset      int
	TotalHeight int
}

func (w Window) Len() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

func (w Window) Contains(index int) bool {
	return index >= w.Start && index <= w.End
}

// MaxScroll is the largest scroll offset that still fills the container.
func MaxScroll(count int, cfg Config) int {
	cfg = cfg.normalized()
	return max(0, count*cfg.ItemHeight-cfg.ContainerHeight)
}

// ClampScroll pins scrollTop into [0, MaxScroll].
func ClampScroll(count, scrollTop int, cfg Config) int {
	return min(max(0, scrollTop), MaxScroll(count, cfg))
}

// ComputeWindow returns the rows to render for the given scroll offset. The number of
// rows is bounded by the container and overscan, never by count.
func ComputeWindow(count, scrollTop int, cfg Config) Window {
	cfg = cfg.normalized()
	if count <= 0 {
		return Window{Start: 0, End: -1}
	}

	scrollTop = ClampScroll(count, scrollTop, cfg)
	visible := (cfg.ContainerHeight + cfg.ItemHeight - 1) / cfg.ItemHeight

	start := max(0, scrollTop/cfg.ItemHeight-cfg.Overscan)
	end := min(count-1, start+visible+2*cfg.Overscan)

	return Window{
		Start:       start,
		End:         end,
		Offset:      start * cfg.ItemHeight,
		TotalHeight: count * cfg.ItemHeight,
	}
}
