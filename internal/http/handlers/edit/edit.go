// Package edit реализует квотируемый вызов AI-редактора.
//
// Квоту проверяет QuotaMiddleware до обработчика; оценку расхода для неё
// даёт Estimate, читая текст из тела запроса.
package edit

import (
	"bytes"
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
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/editor"
)

// MaxBodyBytes — предельный размер тела запроса.
const MaxBodyBytes = 1 << 20

// Request — фрагмент рукописи и указания редактору.
type Request struct {
	Text         string  `json:"text" validate:"required,max=200000"`
	Instructions string  `json:"instructions" validate:"max=4000"`
	ProjectID    *string `json:"projectId" validate:"omitempty,max=64"`
	Model        string  `json:"model" validate:"max=64"`
}

// Service выполняет редактирование.
type Service interface {
	Edit(ctx context.Context, userID string, req editor.Request) (*editor.Result, error)
}

// Handler обрабатывает POST /api/edit.
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
// @Summary Редактирование текста
// @Description Отправляет фрагмент в AI-сервис. Расход токенов записывается в журнал.
// @Tags Editor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Текст и указания"
// @Success 200 {object} editor.Result
// @Failure 400 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse "Daily token limit exceeded | Monthly token limit exceeded"
// @Failure 503 {object} response.ErrorResponse "AI-сервис недоступен"
// @Router /edit [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.edit"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok || !id.Authenticated {
		response.WriteError(w, r, log, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token"))
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
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

	res, err := h.svc.Edit(r.Context(), id.UserID, editor.Request{
		Text:         req.Text,
		Instructions: req.Instructions,
		Model:        req.Model,
		ProjectID:    req.ProjectID,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

// Estimate оценивает расход запроса по полю text. Тело запроса восстанавливается
// для обработчика. Нечитаемое тело даёт нулевую оценку: его отклонит обработчик.
func Estimate(r *http.Request) int64 {
	if r.Body == nil {
		return 0
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return 0
	}

	var req struct {
		Text string `json:"text"`
	}
	if err = json.Unmarshal(body, &req); err != nil {
		return 0
	}
	return editor.EstimateTokens(req.Text)
}
