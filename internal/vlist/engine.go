package vlist

// RenderFunc draws one item. The engine pads or cuts the result to ItemHeight lines.
type RenderFunc[T any] func(item T, index int, selected bool, width int) []string

// Engine owns a list, its scroll offset and an optional selection. It is not safe for
// concurrent use; a terminal program drives it from its update loop.
type Engine[T any] struct {
	cfg      Config
	width    int
	items    []T
	scroll   int
	selected int
	follow   bool
	render   RenderFunc[T]
	backend  Backend

	// Empty is shown when the list has no items.
	Empty string
}

func New[T any](cfg Config, render RenderFunc[T], backend Backend) *Engine[T] {
	if backend == nil {
		backend = NewViewportBackend()
	}
	return &Engine[T]{
		cfg:      cfg.normalized(),
		render:   render,
		backend:  backend,
		selected: -1,
	}
}

func (e *Engine[T]) Backend() Backend { return e.backend }

func (e *Engine[T]) Config() Config { return e.cfg }

func (e *Engine[T]) Len() int { return len(e.items) }

// SetItems replaces the list. An engine following the bottom stays there; otherwise the
// scroll offset is clamped to the new length.
func (e *Engine[T]) SetItems(items []T) {
	e.items = items
	if e.selected >= len(items) {
		e.selected = len(items) - 1
	}
	if e.follow {
		e.scroll = MaxScroll(len(items), e.cfg)
		return
	}
	e.scroll = ClampScroll(len(items), e.scroll, e.cfg)
}

func (e *Engine[T]) SetSize(width, height int) {
	e.width = max(0, width)
	e.cfg.ContainerHeight = max(0, height)
	if e.follow {
		e.scroll = MaxScroll(len(e.items), e.cfg)
		return
	}
	e.scroll = ClampScroll(len(e.items), e.scroll, e.cfg)
}

func (e *Engine[T]) ScrollTop() int { return e.scroll }

func (e *Engine[T]) ScrollTo(top int) {
	e.scroll = ClampScroll(len(e.items), top, e.cfg)
	e.follow = e.AtBottom()
}

func (e *Engine[T]) ScrollBy(delta int) {
	e.ScrollTo(e.scroll + delta)
}

// ScrollToBottom pins the view to the newest rows until the user scrolls away.
func (e *Engine[T]) ScrollToBottom() {
	e.scroll = MaxScroll(len(e.items), e.cfg)
	e.follow = true
}

func (e *Engine[T]) AtBottom() bool {
	return e.scroll >= MaxScroll(len(e.items), e.cfg)
}

func (e *Engine[T]) Window() Window {
	return ComputeWindow(len(e.items), e.scroll, e.cfg)
}

// Select moves the selection to index and scrolls just enough to show it.
func (e *Engine[T]) Select(index int) {
	if len(e.items) == 0 {
		e.selected = -1
		return
	}
	e.selected = min(max(0, index), len(e.items)-1)

	top := e.selected * e.cfg.ItemHeight
	bottom := top + e.cfg.ItemHeight
	switch {
	case top < e.scroll:
		e.ScrollTo(top)
	case bottom > e.scroll+e.cfg.ContainerHeight:
		e.ScrollTo(bottom - e.cfg.ContainerHeight)
	}
}

func (e *Engine[T]) MoveSelection(delta int) {
	if e.selected < 0 {
		e.Select(0)
		return
	}
	e.Select(e.selected + delta)
}

func (e *Engine[T]) Selected() (T, int, bool) {
	var zero T
	if e.selected < 0 || e.selected >= len(e.items) {
		return zero, -1, false
	}
	return e.items[e.selected], e.selected, true
}

// Lines materializes the current window, ItemHeight lines per row.
func (e *Engine[T]) Lines() (Window, []string) {
	w := e.Window()
	lines := make([]string, 0, w.Len()*e.cfg.ItemHeight)
	for i := w.Start; i <= w.End; i++ {
		rows := e.render(e.items[i], i, i == e.selected, e.width)
		for j := 0; j < e.cfg.ItemHeight; j++ {
			if j < len(rows) {
				lines = append(lines, rows[j])
			} else {
				lines = append(lines, "")
			}
		}
	}
	return w, lines
}

func (e *Engine[T]) View() string {
	if len(e.items) == 0 {
		return FallbackBackend{}.Render([]string{e.Empty}, 0, e.width, e.cfg.ContainerHeight)
	}
	w, lines := e.Lines()
	offset := ClampScroll(len(e.items), e.scroll, e.cfg) - w.Offset
	return e.backend.Render(lines, offset, e.width, e.cfg.ContainerHeight)
}
