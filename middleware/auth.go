package middleware

import (
	"net/http"
	"strings"

	"github.com/permitio/pdp-sidecar/errs"
)

// RequireBearerToken returns middleware that enforces an exact match
// between the request's Authorization: Bearer token and apiKey. A missing
// header, a non-Bearer scheme and a mismatched token are all reported as
// 401 with an errs.Auth error; they differ only in the error message written
// to the JSON response body.
func RequireBearerToken(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, errs.Auth("missing bearer token"))
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeAuthError(w, errs.Auth("authorization header must use the Bearer scheme"))
				return
			}

			token := strings.TrimPrefix(header, prefix)
			if token == "" || token != apiKey {
				writeAuthError(w, errs.Auth("invalid bearer token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(err))
	_, _ = w.Write([]byte(`{"error":"` + err.Error() + `"}`))
}
