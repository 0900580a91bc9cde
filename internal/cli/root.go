// Package cli defines the chat-widget commands: the customer widget (root) and the
// agent inbox.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"storefront-chat/internal/config"
	internaljwt "storefront-chat/internal/jwt"
	"storefront-chat/internal/logger"
	"storefront-chat/internal/tui"
	"storefront-chat/internal/vlist"
	"storefront-chat/internal/widget"
	"storefront-chat/internal/widget/chatapi"
	"storefront-chat/internal/widget/live"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	serverURL   string
	token       string
	listBackend string
	logFile     string
	openOnStart bool
	version     = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "chat-widget",
	Short: "Customer support chat in the terminal",
	Long: `chat-widget runs the storefront support chat as a terminal widget.
Press ctrl+o to open the chat; a session is created with your first message.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runWidget,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chat API base URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default from "+config.EnvWidgetToken+")")
	rootCmd.PersistentFlags().StringVar(&listBackend, "list-backend", "", "list renderer: viewport or fallback")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of discarding them")
	rootCmd.Flags().BoolVar(&openOnStart, "open", false, "open the chat immediately")

	rootCmd.AddCommand(inboxCmd)
}

// env is what both commands share once flags and config are merged.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend vlist.Backend
	closer  io.Closer
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Widget.ServerURL = serverURL
	}
	if token != "" {
		cfg.Widget.Token = token
	}
	if listBackend != "" {
		cfg.Widget.ListBackend = listBackend
	}

	backend, err := vlist.BackendByName(cfg.Widget.ListBackend)
	if err != nil {
		return nil, err
	}

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var out io.Writer = io.Discard
	var closer io.Closer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	log := logger.Setup(cfg.Logging, out)

	return &env{cfg: cfg, log: log, backend: backend, closer: closer}, nil
}

func (e *env) Close() {
	if e.closer != nil {
		e.closer.Close()
	}
}

// customerFromToken reads the identity the storefront login put into the token.
func customerFromToken(tok string) (widget.Customer, error) {
	claims, err := internaljwt.InspectToken(tok)
	if err != nil {
		return widget.Customer{}, err
	}
	user := claims.User()
	return widget.Customer{UserID: user.Id, Name: user.Name, Email: user.Email}, nil
}

func runWidget(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var customer widget.Customer
	tok := e.cfg.Widget.Token
	if tok != "" {
		if customer, err = customerFromToken(tok); err != nil {
			e.log.Warn().Err(err).Msg("ignoring unreadable token")
			tok = ""
		}
	}

	opts := widget.Options{
		API:                chatapi.NewClient(e.cfg.Widget.ServerURL, func() string { return tok }, e.cfg.Widget.RequestTimeout),
		Auth:               widget.NewStaticAuth(tok, customer),
		Signals:            widget.NewSignals(),
		Logger:             e.log,
		RequestTimeout:     e.cfg.Widget.RequestTimeout,
		TypingIdle:         e.cfg.Widget.TypingIdle,
		ReconcileTolerance: e.cfg.Widget.ReconcileTolerance,
	}

	// Without a live channel the widget still works over REST; replies show on reopen.
	if tok != "" {
		conn, err := live.Dial(ctx, e.cfg.Widget.ServerURL, tok, e.log)
		if err != nil {
			e.log.Warn().Err(err).Msg("live channel unavailable")
		} else {
			defer conn.Close()
			opts.Live = conn
		}
	}

	ctrl := widget.NewController(opts)
	go ctrl.Run(ctx)
	if openOnStart {
		opts.Signals.Dispatch(widget.EventOpenChatWidget)
	}

	model := tui.NewChatModel(ctx, ctrl, vlist.Config{
		ItemHeight: e.cfg.Widget.MessageItemHeight,
		Overscan:   e.cfg.Widget.MessageOverscan,
	}, e.backend, "Support")

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
