package handlers

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/platform/requestctx"
)

// ScopeCookie names the cookie carrying the browser-profile scope. Every
// client-state key is bucketed under it.
const ScopeCookie = "storefront_profile"

const scopeCookieMaxAge = 365 * 24 * 60 * 60

// ScopeMiddleware reads the profile scope from the request cookie, minting
// and setting one when absent, and stores it on the request context.
func ScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var scope string
		if cookie, err := r.Cookie(ScopeCookie); err == nil {
			scope = strings.TrimSpace(cookie.Value)
		}
		if scope == "" {
			scope = ulid.Make().String()
			http.SetCookie(w, &http.Cookie{
				Name:     ScopeCookie,
				Value:    scope,
				Path:     "/",
				MaxAge:   scopeCookieMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithScope(r.Context(), scope)))
	})
}

// scopeFromRequest returns the profile scope stored by ScopeMiddleware.
func scopeFromRequest(r *http.Request) (clientstore.Scope, bool) {
	scope, ok := requestctx.Scope(r.Context())
	return clientstore.Scope(scope), ok
}
