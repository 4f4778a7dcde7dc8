package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/callisto/pkg/proxy"
	"mercator-hq/callisto/pkg/proxyerr"
)

// Recovery turns handler panics into a 500 error envelope. The panic and
// stack trace are logged; nothing internal reaches the client.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler",
						"panic", rec,
						"request_id", GetRequestID(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					proxy.WriteError(w, logger,
						proxyerr.New(proxyerr.KindInternal, "an internal error occurred"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
