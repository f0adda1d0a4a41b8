package middleware

import (
	"net/http"
	"runtime/debug"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

// Recovery turns a handler panic into a logged 500 with the standard error body.
func Recovery(h *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.From(r.Context()).Error("panic recovered",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()))
					h.WriteJSON(w, http.StatusInternalServerError, apperrors.Response{
						Error: apperrors.NewInternalError("internal server error", nil),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
