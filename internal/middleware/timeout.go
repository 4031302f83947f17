package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a console request, including the gateway call
// it makes.
const DefaultRequestTimeout = 30 * time.Second

// Timeout answers 503 when a handler runs longer than timeout. The handler's
// context is cancelled at the same moment, which aborts any gateway call.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "Request Timeout")
	}
}
