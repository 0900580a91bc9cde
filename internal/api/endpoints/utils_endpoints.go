package endpoints

import (
	"net/http"

	"storefront-chat/internal/websocket"
)

type UtilsEndpoints interface {
	Health(http.ResponseWriter, *http.Request) error
	Websocket(http.ResponseWriter, *http.Request) error
}

type utilsEndpoints struct {
	live *websocket.Handler
}

func NewUtilsEndpoints(live *websocket.Handler) UtilsEndpoints {
	return &utilsEndpoints{live: live}
}

func (h *utilsEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *utilsEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.live.ServeWS(w, r)
			return nil
		},
	})
}
