// Package invite реализует выпуск инвайт-кодов администратором.
package invite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// Request — желаемый код. Пустое тело или пустой code означают случайный код.
type Request struct {
	Code string `json:"code" validate:"omitempty,min=4,max=32,alphanum"`
}

// Service создаёт инвайт-коды.
type Service interface {
	CreateInvite(ctx context.Context, adminID, code string) (*models.InviteCode, error)
}

// Handler обрабатывает POST /api/admin/invites.
type Handler struct {
	log      *slog.Logger
	svc      Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Новый инвайт-код
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request false "Код"
// @Success 201 {object} map[string]models.InviteCode
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Router /admin/invites [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.invite"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Info("failed to decode request body", sl.Err(err))
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.JSON(w, r, http.StatusBadRequest, response.ValidationError(verrs))
			return
		}
		response.WriteError(w, r, log, err)
		return
	}

	id, _ := middlewarectx.IdentityFrom(r.Context())
	inv, err := h.svc.CreateInvite(r.Context(), id.UserID, req.Code)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{"invite": inv})
}
