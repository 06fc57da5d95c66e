package middlewares

import (
	"net/http"

	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
)

// Nonce rejects requests that do not carry a valid nonce for scope.
func Nonce(issuer *httpx.NonceIssuer, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := issuer.Verify(httpx.NonceFromRequest(r), scope)
			if err != nil {
				httpx.AjaxError(w, r, http.StatusForbidden, log.DebugLevel, "ajax.nonce", "Security check failed. Please reload the page.", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
