package api

import (
	"crypto/subtle"
	"net/http"

	"terrana/internal/config"
)

// auth guards every endpoint except the health check behind a static API
// key. An empty configured key disables the check (local development).
type auth struct {
	key string
}

func newAuth(cfg config.APIConfig) *auth {
	return &auth{key: cfg.AuthKey}
}

func (a *auth) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.key == "" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
