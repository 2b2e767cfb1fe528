package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
)

// AuthStateHeader lets the authenticating proxy say that a session exists but
// is not resolved yet.
const AuthStateHeader = "X-Auth-State"

type identityKey struct{}

// IdentityConfig names the headers set by the authenticating proxy.
type IdentityConfig struct {
	UserHeader string
	NameHeader string
}

// Identity reads the caller from proxy headers and stores a loader.Identity in
// the request context. It never rejects a request: handlers decide what a
// missing user means.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	if cfg.NameHeader == "" {
		cfg.NameHeader = "X-User-Name"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id loader.Identity
			if strings.EqualFold(r.Header.Get(AuthStateHeader), "pending") {
				id.Loading = true
			} else if userID := strings.TrimSpace(r.Header.Get(cfg.UserHeader)); userID != "" {
				id.User = &domain.User{
					ID:   userID,
					Name: strings.TrimSpace(r.Header.Get(cfg.NameHeader)),
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id loader.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Identity. The zero value means
// signed out.
func IdentityFrom(ctx context.Context) loader.Identity {
	id, _ := ctx.Value(identityKey{}).(loader.Identity)
	return id
}
