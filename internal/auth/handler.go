package auth

import (
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
}

func NewHandler(baseHandler *transport.BaseHandler) *Handler {
	return &Handler{BaseHandler: baseHandler}
}

type SessionResponse struct {
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me handles GET /api/v1/auth/me and echoes the verified operator token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.HandleError(w, r, apperrors.ErrInvalidToken)
		return
	}

	resp := SessionResponse{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
