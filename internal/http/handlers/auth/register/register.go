// Package register реализует HTTP-обработчик регистрации по инвайт-коду.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/validate"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
)

// Request — входные данные регистрации.
type Request struct {
	Username   string `json:"username" validate:"required,min=3,max=30,username"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=72,password"`
	InviteCode string `json:"inviteCode" validate:"required,max=64"`
}

// Service описывает регистрацию пользователя.
type Service interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
}

// Handler обрабатывает POST /api/auth/register.
type Handler struct {
	log      *slog.Logger
	svc      Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		validate: validate.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация пользователя
// @Description Создаёт учётную запись по одноразовому инвайт-коду и возвращает пару токенов.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Данные регистрации"
// @Success 201 {object} auth.Result
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации или недействительный инвайт-код"
// @Failure 409 {object} response.ErrorResponse "Имя пользователя или email заняты"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			response.JSON(w, r, http.StatusBadRequest, response.ValidationError(verrs))
			return
		}
		response.WriteError(w, r, log, err)
		return
	}

	res, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("user registered", sl.UserID(res.User.ID))
	response.JSON(w, r, http.StatusCreated, res)
}
