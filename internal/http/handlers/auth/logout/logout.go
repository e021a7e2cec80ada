// Package logout реализует выход: удаление сессии по токену обновления.
package logout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
)

// Request содержит токен обновления.
type Request struct {
	RefreshToken string `json:"refreshToken"`
}

// Service описывает выход.
type Service interface {
	Logout(ctx context.Context, refreshToken string)
}

// Handler обрабатывает POST /api/auth/logout. Ответ всегда 200.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Выход
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request false "Токен обновления"
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("logout without a readable body",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
	if req.RefreshToken != "" {
		h.svc.Logout(r.Context(), req.RefreshToken)
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}
