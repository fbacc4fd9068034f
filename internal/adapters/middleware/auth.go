package middleware

import (
	"crypto/subtle"
	"net/http"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

const apiKeyHeaderName = "X-API-Key"

// APIKeyAuthMiddleware guards the local API with server.api_key. With no key
// configured every request passes, which suits a loopback-only listener.
func APIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := cfgProvider.Get().Server.APIKey
			if expected == "" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get(apiKeyHeaderName)
			if apiKey == "" {
				logger.Warn(r.Context(), "API key authentication failed: Key missing", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrCodeUnauthorized, "API key is required", "Provide the API key in the X-API-Key header.").WriteJSON(w, http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
				logger.Warn(r.Context(), "API key authentication failed: Invalid key", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrCodeUnauthorized, "Invalid API key", "The provided API key is not valid.").WriteJSON(w, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
