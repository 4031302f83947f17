package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// DefaultMaxRequestSize bounds console request bodies. A settings edit is a
// few hundred bytes.
const DefaultMaxRequestSize int64 = 64 << 10

// MaxRequestSize caps the body of console mutations at maxBytes. Requests
// that declare a larger Content-Length get a KindTooLarge response without
// reaching the handler; bodies that turn out larger fail on read.
// GET, HEAD and OPTIONS pass through untouched.
func MaxRequestSize(maxBytes int64, log *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				log.Warn("console_request_too_large",
					zap.String("route", r.URL.Path),
					zap.Int64("content_length", r.ContentLength),
					zap.Int64("limit", maxBytes),
				)
				WriteError(w, r, KindTooLarge, "Settings edits are limited in size", log)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
