package middleware

import (
	"net/http"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/auth"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

// RequireOperator admits requests carrying a valid bearer token with the
// operator role: 401 when the token is missing or fails verification, 403
// when it verifies but names another role.
func RequireOperator(verifier auth.TokenVerifier, h *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := h.ExtractTokenFromHeader(r)
			if raw == "" {
				h.HandleError(w, r, apperrors.NewUnauthorizedError("Missing bearer token", apperrors.ErrCodeInvalidToken))
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				h.HandleError(w, r, err)
				return
			}
			if !claims.IsOperator() {
				logger.From(r.Context()).Warn("non-operator token rejected", "subject", claims.Subject, "role", claims.Role)
				h.HandleError(w, r, apperrors.ErrForbidden)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = logger.With(ctx, "operator", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
