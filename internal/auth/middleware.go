package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Require rejects requests without a valid bearer token with 401 and stores
// the session in the request context otherwise.
func (v *Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := v.Verify(r.Context(), BearerToken(r))
		if err != nil {
			if !errors.Is(err, ErrMissingToken) && !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrRevoked) {
				slog.Error("token verification failed", "error", err)
			}
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "not authenticated"
	switch {
	case errors.Is(err, ErrRevoked):
		msg = "session has ended, please sign in again"
	case errors.Is(err, ErrInvalidToken):
		msg = "invalid token"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mathcode"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
