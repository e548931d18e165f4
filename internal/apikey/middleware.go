package apikey

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
)

const headerAPIKey = "X-API-Key"

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Verifier guards endpoints behind a static API key. An empty configured
// key rejects everything: there is no unauthenticated mode for protected
// routes.
type Verifier struct {
	Key string
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.verify(r); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) verify(r *http.Request) error {
	provided := r.Header.Get(headerAPIKey)
	if provided == "" {
		return ErrMissingKey
	}
	if v.Key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(v.Key)) != 1 {
		return ErrInvalidKey
	}
	return nil
}
