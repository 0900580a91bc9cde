package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront-chat/internal/api/middleware"
	"storefront-chat/internal/queue"
	"storefront-chat/internal/service/chat"
	"storefront-chat/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type ServerOptions struct {
	ListenAddr     string
	AllowedOrigins []string
	Queue          *queue.RequestQueueManager
	Chat           *chat.Service
	Live           *websocket.Handler
	Registry       *prometheus.Registry
	Logger         zerolog.Logger
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	chat                *chat.Service
	live                *websocket.Handler
	cors                middleware.CORSConfig
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
	log                 zerolog.Logger
}

func NewAPIServer(opts ServerOptions, registrars ...RouteRegistrar) *APIServer {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &APIServer{
		listenAddr:          opts.ListenAddr,
		requestQueueManager: opts.Queue,
		chat:                opts.Chat,
		live:                opts.Live,
		cors: middleware.CORSConfig{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "Authorization"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		},
		routeRegistrars: registrars,
		metrics:         newMetrics(registry, opts.ListenAddr, opts.Queue),
		log:             opts.Logger.With().Str("component", "api").Logger(),
	}
}

func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.listenAddr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}

func (s *APIServer) ChatService() *chat.Service {
	return s.chat
}

func (s *APIServer) Live() *websocket.Handler {
	return s.live
}
