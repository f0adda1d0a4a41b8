package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

const TraceHeader = "X-Trace-ID"

// TraceID reuses the caller's X-Trace-ID or mints one, echoes it on the
// response and attaches it to the request logger.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := apperrors.ContextWithTraceID(r.Context(), traceID)
		ctx = logger.With(ctx, "trace_id", traceID)

		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
