package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/request"
	"go.uber.org/zap"
)

// ErrorKind names a console failure and fixes its HTTP status.
type ErrorKind string

const (
	KindNotFound ErrorKind = "Not Found"
	KindTooLarge ErrorKind = "Request Entity Too Large"
	KindInternal ErrorKind = "Internal Server Error"
)

// Status is the HTTP status the console answers kind with.
func (k ErrorKind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body the console sends when a request fails
// before reaching a handler.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     ErrorKind `json:"error"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorHandler turns a handler panic into a KindInternal response. When the
// handler already started its response, the panic is logged and the
// connection is left to finish as is. http.ErrAbortHandler is re-raised.
func ErrorHandler(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				log.Error("console_handler_panicked",
					zap.Any("panic", rec),
					zap.String("route", r.URL.Path),
					zap.String("method", r.Method),
					zap.Bool("response_started", tw.started),
					zap.String("request_id", request.IDFromContext(r.Context())),
				)
				if !tw.started {
					WriteError(w, r, KindInternal, "The console failed to handle this request", log)
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// WriteError answers r with kind's status and an ErrorResponse body.
func WriteError(w http.ResponseWriter, r *http.Request, kind ErrorKind, message string, log *zap.Logger) {
	body := ErrorResponse{
		Error:     kind,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: request.IDFromContext(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.Status())
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("failed_to_write_console_error",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("route", r.URL.Path),
		)
	}
}

// headerTracker records whether the wrapped handler has begun its response.
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (t *headerTracker) WriteHeader(status int) {
	t.started = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
