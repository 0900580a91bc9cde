package router

import (
	"net/http"

	"storefront-chat/internal/api"
	"storefront-chat/internal/api/endpoints"
	"storefront-chat/internal/api/middleware"
)

func ChatRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		chatEndpoints := endpoints.NewChatEndpoints(s.ChatService(), prefix)
		auth := middleware.Authenticate(s.ChatService())

		mux.HandleFunc(prefix+"/chat", s.MakeHTTPHandleFunc(chatEndpoints.Sessions, auth))
		mux.HandleFunc(prefix+"/chat/customer", s.MakeHTTPHandleFunc(chatEndpoints.CustomerSessions, auth))
		mux.HandleFunc(prefix+"/chat/inbox", s.MakeHTTPHandleFunc(chatEndpoints.Inbox, auth, middleware.RequireStaff()))
		mux.HandleFunc(prefix+"/chat/availability", s.MakeHTTPHandleFunc(chatEndpoints.Availability))
		mux.HandleFunc(prefix+"/chat/", s.MakeHTTPHandleFunc(chatEndpoints.Session, auth))
	}
}
