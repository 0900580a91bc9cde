package cli

import (
	"context"
	"errors"
	"fmt"

	"storefront-chat/internal/config"
	"storefront-chat/internal/dto"
	internaljwt "storefront-chat/internal/jwt"
	"storefront-chat/internal/tui"
	"storefront-chat/internal/vlist"
	"storefront-chat/internal/widget/chatapi"
	"storefront-chat/internal/widget/live"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Browse support conversations as an agent",
	Long: `inbox lists every conversation, most recent first, and keeps the list
current from the live channel. It needs an agent token.`,
	RunE: runInbox,
}

var errAgentTokenRequired = errors.New("inbox needs an agent token (--token or " + config.EnvWidgetToken + ")")

func runInbox(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	tok := e.cfg.Widget.Token
	if tok == "" {
		return errAgentTokenRequired
	}
	agent, err := inspectAgent(tok)
	if err != nil {
		return err
	}
	e.log.Info().Str("agent", agent.Id).Msg("starting inbox")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := chatapi.NewClient(e.cfg.Widget.ServerURL, func() string { return tok }, e.cfg.Widget.RequestTimeout)

	var events <-chan dto.Envelope
	conn, err := live.Dial(ctx, e.cfg.Widget.ServerURL, tok, e.log)
	if err != nil {
		e.log.Warn().Err(err).Msg("live channel unavailable; refresh with ctrl+l")
	} else {
		defer conn.Close()
		events = conn.Events()
	}

	model := tui.NewInboxModel(ctx, client, events, vlist.Config{
		ItemHeight: e.cfg.Widget.ConversationItemLines,
		Overscan:   e.cfg.Widget.ConversationOverscan,
	}, e.backend, e.log)

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// inspectAgent refuses customer tokens, which would only list the caller's own sessions.
func inspectAgent(tok string) (internaljwt.User, error) {
	claims, err := internaljwt.InspectToken(tok)
	if err != nil {
		return internaljwt.User{}, err
	}
	if !claims.Role.IsStaff() {
		return internaljwt.User{}, fmt.Errorf("inbox: role %q cannot read other customers' conversations", claims.Role)
	}
	return claims.User(), nil
}
