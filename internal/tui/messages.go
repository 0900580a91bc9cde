package tui

import (
	"storefront-chat/internal/dto"
	"storefront-chat/internal/widget"

	tea "github.com/charmbracelet/bubbletea"
)

// changedMsg reports that the widget state moved and the view should re-read it.
type changedMsg struct{}

type actionDoneMsg struct {
	action string
	err    error
}

type sessionsLoadedMsg struct {
	sessions []widget.Session
	err      error
}

type envelopeMsg struct {
	env dto.Envelope
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func waitForEnvelope(ch <-chan dto.Envelope) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		env, ok := <-ch
		if !ok {
			return nil
		}
		return envelopeMsg{env: env}
	}
}
