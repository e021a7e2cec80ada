// Package login реализует HTTP-обработчик входа по email или имени пользователя.
//
// Ответ при неверном пароле и при неизвестном пользователе одинаков, чтобы
// не раскрывать существование учётной записи. Заблокированный аккаунт получает 429.
package login

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
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
)

// Request — учётные данные для входа.
type Request struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

// Service описывает вход пользователя.
type Service interface {
	Login(ctx context.Context, identifier, password string) (*auth.Result, error)
}

// Handler обрабатывает POST /api/auth/login.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	svc      Service             // Сервис аутентификации
	validate *validator.Validate // Валидатор для проверки входных данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход пользователя
// @Description Аутентифицирует пользователя по email или имени. Возвращает токен доступа и токен обновления.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} auth.Result
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Учётная запись отключена"
// @Failure 429 {object} response.ErrorResponse "Учётная запись временно заблокирована"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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
			response.JSON(w, r, http.StatusBadRequest, response.ValidationError(verrs))
			return
		}
		response.WriteError(w, r, log, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	log.Info("login success", sl.UserID(res.User.ID))
	response.JSON(w, r, http.StatusOK, res)
}
