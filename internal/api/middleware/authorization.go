package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/service/chat"
)

type identityKey struct{}

type IdentityResolver interface {
	IdentityFromAuthorizationHeader(header string) (chat.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the caller's
// identity on the request context.
func Authenticate(resolver IdentityResolver) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, dto.ErrorResponse{Code: "unauthorized", Message: err.Error()})
				return
			}
			next(w, r.WithContext(WithIdentity(r.Context(), identity)))
		}
	}
}

// RequireStaff must run after Authenticate.
func RequireStaff() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !identity.IsStaff() {
				writeError(w, http.StatusForbidden, dto.ErrorResponse{Code: "forbidden", Message: "agents only"})
				return
			}
			next(w, r)
		}
	}
}

func WithIdentity(ctx context.Context, identity chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (chat.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(chat.Identity)
	return identity, ok
}

// writeError matches the body api.HTTPError produces, so clients decode one error shape.
func writeError(w http.ResponseWriter, status int, body dto.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
