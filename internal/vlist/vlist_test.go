package vlist

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWindow(t *testing.T) {
	cfg := Config{ItemHeight: 80, ContainerHeight: 400, Overscan: 5}

	w := ComputeWindow(10000, 8000, cfg)
	assert.Equal(t, 95, w.Start)
	assert.LessOrEqual(t, w.End, 110)
	assert.LessOrEqual(t, w.Len(), 20)
	assert.Equal(t, 95*80, w.Offset)
	assert.Equal(t, 10000*80, w.TotalHeight)

	// The window size does not depend on the list length.
	for _, count := range []int{200, 10000, 1000000} {
		w := ComputeWindow(count, 8000, cfg)
		assert.Equal(t, 16, w.Len(), "count=%d", count)
	}
}

func TestComputeWindowEdges(t *testing.T) {
	cfg := Config{ItemHeight: 2, ContainerHeight: 10, Overscan: 3}

	empty := ComputeWindow(0, 50, cfg)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, -1, empty.End)

	top := ComputeWindow(100, -20, cfg)
	assert.Equal(t, 0, top.Start)
	assert.Equal(t, 11, top.End)

	short := ComputeWindow(3, 0, cfg)
	assert.Equal(t, 0, short.Start)
	assert.Equal(t, 2, short.End)

	// Past the end is clamped to the last full screen.
	tail := ComputeWindow(100, 10000, cfg)
	assert.Equal(t, 99, tail.End)
	assert.True(t, tail.Contains(95))
	assert.Equal(t, 190, MaxScroll(100, cfg))
	assert.Equal(t, 0, MaxScroll(3, cfg))
}

func TestComputeWindowCoversViewport(t *testing.T) {
	for _, cfg := range []Config{
		{ItemHeight: 1, ContainerHeight: 7, Overscan: 0},
		{ItemHeight: 3, ContainerHeight: 10, Overscan: 0},
		{ItemHeight: 80, ContainerHeight: 400, Overscan: 5},
	} {
		for scroll := 0; scroll <= MaxScroll(50, cfg); scroll++ {
			w := ComputeWindow(50, scroll, cfg)
			first := scroll / cfg.ItemHeight
			last := min(49, (scroll+cfg.ContainerHeight-1)/cfg.ItemHeight)
			require.True(t, w.Contains(first) && w.Contains(last), "cfg=%+v scroll=%d window=%+v", cfg, scroll, w)
		}
	}
}

func numbered(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func renderRow(item int, index int, selected bool, width int) []string {
	marker := " "
	if selected {
		marker = ">"
	}
	return []string{fmt.Sprintf("%s item %d", marker, item), "  ---"}
}

func trimmed(view string) []string {
	lines := strings.Split(view, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return lines
}

func TestBackendsRenderSameRows(t *testing.T) {
	for _, scroll := range []int{0, 1, 7, 500, 1990, 5000} {
		var views [][]string
		for _, name := range []string{BackendViewport, BackendFallback} {
			backend, err := BackendByName(name)
			require.NoError(t, err)
			e := New(Config{ItemHeight: 2, Overscan: MessageOverscan}, renderRow, backend)
			e.SetSize(30, 9)
			e.SetItems(numbered(1000))
			e.ScrollTo(scroll)
			e.Select(e.Window().Start + 1)
			e.ScrollTo(scroll)
			views = append(views, trimmed(e.View()))
		}
		require.Len(t, views[0], 9)
		assert.Equal(t, views[0], views[1], "scroll=%d", scroll)
	}
}

func TestBackendsClipWideRowsAlike(t *testing.T) {
	wide := func(item, index int, selected bool, width int) []string {
		return []string{strings.Repeat("x", 50) + fmt.Sprintf("END%03d", index)}
	}
	var views [][]string
	for _, name := range []string{BackendViewport, BackendFallback} {
		backend, err := BackendByName(name)
		require.NoError(t, err)
		e := New(Config{ItemHeight: 1, Overscan: MessageOverscan}, wide, backend)
		e.SetSize(20, 4)
		e.SetItems(numbered(100))
		e.ScrollTo(10)
		views = append(views, trimmed(e.View()))
	}
	require.Len(t, views[0], 4)
	assert.Equal(t, views[0], views[1])
	assert.Equal(t, strings.Repeat("x", 20), views[0][0])
}

func TestEngineViewShowsScrolledRows(t *testing.T) {
	e := New(Config{ItemHeight: 2, Overscan: 1}, renderRow, FallbackBackend{})
	e.SetSize(20, 4)
	e.SetItems(numbered(100))
	e.ScrollTo(21)

	lines := trimmed(e.View())
	assert.Equal(t, []string{"  ---", "  item 11", "  ---", "  item 12"}, lines)

	w, rendered := e.Lines()
	assert.Equal(t, w.Len()*2, len(rendered))
	assert.LessOrEqual(t, w.Len(), 2+2+2)
}

func TestEngineFollowsBottom(t *testing.T) {
	e := New(Config{ItemHeight: 1}, renderRow, FallbackBackend{})
	e.SetSize(20, 5)
	e.SetItems(numbered(10))
	e.ScrollToBottom()
	assert.Equal(t, 5, e.ScrollTop())

	e.SetItems(numbered(12))
	assert.True(t, e.AtBottom())
	assert.Equal(t, 7, e.ScrollTop())

	e.ScrollBy(-3)
	e.SetItems(numbered(20))
	assert.Equal(t, 4, e.ScrollTop(), "a reader scrolled up is not yanked down")

	e.SetItems(numbered(3))
	assert.Equal(t, 0, e.ScrollTop(), "shrinking clamps the offset")
}

func TestEngineSelectionStaysVisible(t *testing.T) {
	e := New(Config{ItemHeight: 2, Overscan: ConversationOverscan}, renderRow, NewViewportBackend())
	e.SetSize(20, 6)
	e.SetItems(numbered(50))

	_, _, ok := e.Selected()
	assert.False(t, ok)

	e.MoveSelection(1)
	item, idx, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, item)

	e.Select(10)
	assert.Equal(t, 16, e.ScrollTop())
	assert.Contains(t, e.View(), "> item 10")

	e.Select(2)
	assert.Equal(t, 4, e.ScrollTop())

	e.Select(500)
	_, idx, _ = e.Selected()
	assert.Equal(t, 49, idx)
	assert.True(t, e.AtBottom())
}

func TestEngineEmpty(t *testing.T) {
	e := New(Config{ItemHeight: 1}, renderRow, nil)
	e.Empty = "No conversations"
	e.SetSize(20, 3)
	lines := trimmed(e.View())
	assert.Equal(t, []string{"No conversations", "", ""}, lines)
	assert.Equal(t, BackendViewport, e.Backend().Name())
}

func TestBackendByNameRejectsUnknown(t *testing.T) {
	_, err := BackendByName("canvas")
	assert.Error(t, err)
}

func TestFitWidth(t *testing.T) {
	assert.Equal(t, "ab   ", fitWidth("ab", 5))
	assert.Equal(t, "abcde", fitWidth("abcdefgh", 5))
	assert.Equal(t, "日本 ", fitWidth("日本語", 5))
	assert.Equal(t, "", fitWidth("x", 0))
}
