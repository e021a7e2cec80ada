// Package response формирует JSON-ответы HTTP-обработчиков шлюза.
//
// Успешные ответы отдаются как есть, верхнеуровневым объектом. Ошибки имеют
// единый вид {status: "Error", error, code}, где code — машиночитаемый код
// из пакета apperr.
package response

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
)

// StatusError — значение поля status в ответе с ошибкой.
const StatusError = "Error"

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
	Code   string `json:"code,omitempty" example:"VALIDATION_ERROR"`
}

// Error возвращает тело ошибки с сообщением и кодом.
func Error(msg, code string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
		Code:   code,
	}
}

// ValidationError формирует тело ошибки по нарушениям правил валидации.
// Каждое нарушение превращается в человекочитаемый текст, нарушения объединяются через запятую.
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	msgs := make([]string, 0, len(errs))

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s characters long", err.Field(), err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s characters long", err.Field(), err.Param()))
		case "username":
			msgs = append(msgs, fmt.Sprintf("field %s can contain only letters, digits, hyphen and underscore", err.Field()))
		case "password":
			msgs = append(msgs, fmt.Sprintf("field %s must contain upper and lower case letters and a digit and be at most 72 bytes", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Error(strings.Join(msgs, ", "), apperr.CodeValidation)
}

// JSON пишет успешный ответ с заданным статусом.
func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// WriteError переводит ошибку в HTTP-ответ по таксономии apperr.
//
// На уровне error логируются только внутренние ошибки; отказы клиенту
// (4xx) считаются ожидаемым трафиком и пишутся на уровне info.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	e := apperr.From(err)
	status := e.Status()

	switch {
	case status >= http.StatusInternalServerError && e.Kind == apperr.KindInternal:
		log.Error("request failed", sl.Err(err))
	case status >= http.StatusInternalServerError:
		log.Warn("request failed", slog.String("code", e.Code), sl.Err(err))
	default:
		log.Info("request rejected", slog.Int("status", status), slog.String("code", e.Code))
	}

	render.Status(r, status)
	render.JSON(w, r, Error(e.Message, e.Code))
}

// BadRequest пишет 400 с кодом VALIDATION_ERROR.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, Error(msg, apperr.CodeValidation))
}
