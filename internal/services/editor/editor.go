// Package editor выполняет квотируемое редактирование текста через внешний AI-сервис.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/magabrotheeeer/manuscript-editor/internal/aiclient"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/breaker"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// Endpoint — имя операции в журнале расхода.
const Endpoint = "edit"

// Сообщения клиенту при недоступности AI-сервиса.
const (
	MsgBreakerOpen  = "AI service temporarily unavailable, try again shortly"
	MsgUpstreamDown = "AI service is unavailable"
)

// Исходы вызова AI-сервиса для метрик.
const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeRejected    = "breaker_open"
	outcomeClientError = "client_error"
)

// Upstream — внешний AI-сервис.
type Upstream interface {
	Edit(ctx context.Context, in aiclient.EditRequest) (*aiclient.EditResponse, error)
}

// Recorder записывает расход токенов.
type Recorder interface {
	Record(ctx context.Context, in usage.RecordInput) (*models.UsageLogEntry, error)
}

// Request — запрос пользователя на редактирование.
type Request struct {
	Text         string
	Instructions string
	Model        string
	ProjectID    *string
}

// Usage — расход токенов одного вызова.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Result — отредактированный текст и фактический расход.
type Result struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
	Model string `json:"model"`
}

// Service выполняет вызовы AI-сервиса под защитой предохранителя.
type Service struct {
	log      *slog.Logger
	upstream Upstream
	breaker  *breaker.Breaker
	ledger   Recorder
	metrics  *metrics.Metrics
}

// New создаёт Service. Предохранитель разделяется всеми запросами процесса.
func New(log *slog.Logger, upstream Upstream, br *breaker.Breaker, ledger Recorder, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		upstream: upstream,
		breaker:  br,
		ledger:   ledger,
		metrics:  m,
	}
}

// Edit отправляет текст в AI-сервис и записывает расход в журнал.
//
// Квоту Edit не проверяет: это делает QuotaMiddleware до вызова обработчика.
func (s *Service) Edit(ctx context.Context, userID string, req Request) (*Result, error) {
	const op = "editor.Edit"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))

	if strings.TrimSpace(req.Text) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "text must not be empty")
	}

	var resp *aiclient.EditResponse
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = s.upstream.Edit(ctx, aiclient.EditRequest{
			Text:         req.Text,
			Instructions: req.Instructions,
			Model:        req.Model,
		})
		return callErr
	}, aiclient.IsServerFailure)

	switch {
	case err == nil:
		s.metrics.UpstreamRequest(outcomeSuccess)
	case errors.Is(err, breaker.ErrOpen):
		s.metrics.UpstreamRequest(outcomeRejected)
		log.Warn("upstream call rejected by open breaker")
		return nil, apperr.Unavailable(MsgBreakerOpen, err)
	case aiclient.IsServerFailure(err):
		s.metrics.UpstreamRequest(outcomeFailure)
		log.Warn("upstream call failed", sl.Err(err), slog.String("breaker", s.breaker.State().String()))
		return nil, apperr.Unavailable(MsgUpstreamDown, err)
	case errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		var se *aiclient.StatusError
		if errors.As(err, &se) {
			s.metrics.UpstreamRequest(outcomeClientError)
			log.Info("upstream rejected request", slog.Int("status", se.StatusCode))
			return nil, &apperr.Error{
				Kind:    apperr.KindValidation,
				Code:    apperr.CodeValidation,
				Message: "request rejected by AI service",
				Err:     err,
			}
		}
		log.Error("unexpected upstream error", sl.Err(err))
		return nil, apperr.Internal(err)
	}

	model := resp.Model
	if _, err = s.ledger.Record(ctx, usage.RecordInput{
		UserID:       userID,
		Endpoint:     Endpoint,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        &model,
		ProjectID:    req.ProjectID,
	}); err != nil {
		// Ответ уже получен и оплачен провайдером, поэтому клиент его получает.
		log.Error("failed to record usage after upstream call", sl.Err(err))
	}

	return &Result{
		Text:  resp.Text,
		Model: resp.Model,
		Usage: Usage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// EstimateTokens грубо оценивает расход вызова по длине текста:
// примерно четыре символа на токен на входе и столько же на выходе.
func EstimateTokens(text string) int64 {
	runes := int64(utf8.RuneCountInString(text))
	return 2 * ((runes + 3) / 4)
}
