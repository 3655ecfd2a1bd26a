package ports

import (
	"net/http"
	"slices"
	"strings"

	"github.com/Amund211/atlas/internal/ratelimiting"
)

// NewRateLimitMiddleware rejects requests once their bucket is empty. A nil onLimitExceeded responds with
// 429 Too Many Requests.
func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter, onLimitExceeded http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	if onLimitExceeded == nil {
		onLimitExceeded = func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, "Rate limit exceeded", http.StatusTooManyRequests)
		}
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !rateLimiter.Consume(r) {
				onLimitExceeded(w, r)
				return
			}

			next(w, r)
		}
	}
}

// NewAllowedMethodsMiddleware responds with 405 Method Not Allowed to any other method
func NewAllowedMethodsMiddleware(methods ...string) func(http.HandlerFunc) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(methods, r.Method) {
				w.Header().Set("Allow", allow)
				writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}

			next(w, r)
		}
	}
}

func ComposeMiddlewares(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	if len(middlewares) == 1 {
		return middlewares[0]
	}
	first := middlewares[0]
	rest := ComposeMiddlewares(middlewares[1:]...)
	return func(h http.HandlerFunc) http.HandlerFunc {
		return first(rest(h))
	}
}
