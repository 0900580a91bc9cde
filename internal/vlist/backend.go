package vlist

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	BackendViewport = "viewport"
	BackendFallback = "fallback"
)

// Backend draws the materialized window. lines holds exactly the rows of the window;
// offset is the first line to show and height how many lines fit.
type Backend interface {
	Name() string
	Render(lines []string, offset, width, height int) string
}

// BackendByName resolves a configured backend; "" selects the viewport backend.
func BackendByName(name string) (Backend, error) {
	switch name {
	case "", BackendViewport:
		return NewViewportBackend(), nil
	case BackendFallback:
		return FallbackBackend{}, nil
	default:
		return nil, fmt.Errorf("vlist: unknown backend %q", name)
	}
}

type viewportBackend struct {
	vp viewport.Model
}

// NewViewportBackend renders through a bubbles viewport.
func NewViewportBackend() Backend {
	return &viewportBackend{vp: viewport.New(0, 0)}
}

func (b *viewportBackend) Name() string { return BackendViewport }

// Render clips every row first; the viewport would otherwise wrap wide rows onto extra
// lines and shift the window.
func (b *viewportBackend) Render(lines []string, offset, width, height int) string {
	b.vp.Width = width
	b.vp.Height = height
	fitted := make([]string, len(lines))
	for i, line := range lines {
		fitted[i] = fitWidth(line, width)
	}
	b.vp.SetContent(strings.Join(fitted, "\n"))
	b.vp.SetYOffset(offset)
	return b.vp.View()
}

// FallbackBackend slices and pads the window itself.
type FallbackBackend struct{}

func (FallbackBackend) Name() string { return BackendFallback }

func (FallbackBackend) Render(lines []string, offset, width, height int) string {
	if height <= 0 {
		return ""
	}
	offset = min(max(0, offset), max(0, len(lines)-height))

	out := make([]string, height)
	for i := range out {
		line := ""
		if idx := offset + i; idx < len(lines) {
			line = lines[idx]
		}
		out[i] = fitWidth(line, width)
	}
	return strings.Join(out, "\n")
}

// fitWidth clips or pads one row to exactly width cells. Styled rows are measured and
// clipped with lipgloss so escape sequences are not counted.
func fitWidth(line string, width int) string {
	if width <= 0 {
		return ""
	}
	if !strings.Contains(line, "\x1b") {
		return runewidth.FillRight(runewidth.Truncate(line, width, ""), width)
	}
	if lipgloss.Width(line) > width {
		line = lipgloss.NewStyle().MaxWidth(width).Render(line)
	}
	if pad := width - lipgloss.Width(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return line
}
