package router

import (
	"net/http"

	"storefront-chat/internal/api"
	"storefront-chat/internal/api/endpoints"
)

func UtilsRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		utilsEndpoints := endpoints.NewUtilsEndpoints(s.Live())
		mux.HandleFunc(prefix+"/health", s.MakeHTTPHandleFunc(utilsEndpoints.Health))
		if s.Live() != nil {
			mux.HandleFunc(prefix+"/ws", s.MakeHTTPHandleFunc(utilsEndpoints.Websocket))
		}
	}
}
