package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront-chat/internal/api/middleware"
	"storefront-chat/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// MakeHTTPHandleFunc runs f on the request queue behind CORS, logging and any auth middleware.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		err := s.requestQueueManager.Submit(r.Context(), queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		})
		if err != nil {
			s.writeError(w, r, &HTTPError{
				StatusCode: http.StatusServiceUnavailable,
				Code:       "unavailable",
				Message:    "Server is busy, try again",
				ErrorLog:   err,
			})
			return
		}

		if err := <-errc; err != nil {
			s.writeError(w, r, err)
		}
	}

	authed := middleware.Chain(baseHandler, authMiddleware...)

	return middleware.Chain(authed,
		middleware.CORS(s.cors),
		middleware.Logging(s.log),
	)
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		event := s.log.Debug()
		if httpErr.StatusCode >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.Err(httpErr.ErrorLog).Str("path", r.URL.Path).Int("status", httpErr.StatusCode).Msg("request failed")
		WriteJSON(w, httpErr.StatusCode, httpErr.body())
		return
	}

	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled request error")
	WriteJSON(w, errInternal.StatusCode, errInternal.body())
}
