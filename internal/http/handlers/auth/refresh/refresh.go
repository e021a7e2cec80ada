// Package refresh реализует обмен токена обновления на новую пару токенов.
package refresh

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
)

// Request содержит токен обновления.
type Request struct {
	RefreshToken string `json:"refreshToken"`
}

// Service описывает ротацию токена обновления.
type Service interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.Result, error)
}

// Handler обрабатывает POST /api/auth/refresh.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Обновление токенов
// @Description Одноразово обменивает токен обновления на новую пару токенов.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Токен обновления"
// @Success 200 {object} auth.Result
// @Failure 401 {object} response.ErrorResponse "Токен недействителен (INVALID) или истёк (EXPIRED)"
// @Router /auth/refresh [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.refresh"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		response.BadRequest(w, r, "field RefreshToken is a required field")
		return
	}

	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
