package httpx

import (
	"crypto/subtle"
	"net/http"
)

const CronSecretHeader = "X-Cron-Secret"

// RequireSecret guards machine-to-machine endpoints. An empty secret disables the route.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				Error(w, http.StatusNotFound, "Not found")
				return
			}
			got := r.Header.Get(CronSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
