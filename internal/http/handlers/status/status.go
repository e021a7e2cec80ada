// Package status отдаёт состояние шлюза. Анонимный вызывающий видит только
// доступность AI-сервиса, аутентифицированный — ещё и собственный расход.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/breaker"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// BreakerState отдаёт состояние предохранителя.
type BreakerState interface {
	State() breaker.State
}

// UsageSummary строит сводку расхода пользователя.
type UsageSummary interface {
	Summary(ctx context.Context, userID string) (*usage.Summary, error)
}

// Response — тело ответа.
type Response struct {
	Upstream      string         `json:"upstream"`
	Authenticated bool           `json:"authenticated"`
	Username      string         `json:"username,omitempty"`
	Usage         *usage.Summary `json:"usage,omitempty"`
}

// Handler обрабатывает GET /api/status.
type Handler struct {
	log     *slog.Logger
	breaker BreakerState
	usage   UsageSummary
}

// New создает Handler.
func New(log *slog.Logger, br BreakerState, u UsageSummary) *Handler {
	return &Handler{log: log, breaker: br, usage: u}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.status"

	resp := Response{Upstream: h.breaker.State().String()}

	id, _ := middlewarectx.IdentityFrom(r.Context())
	if id.Authenticated {
		resp.Authenticated = true
		resp.Username = id.Username
		s, err := h.usage.Summary(r.Context(), id.UserID)
		if err != nil {
			h.log.Warn("usage summary unavailable",
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			)
		} else {
			resp.Usage = s
		}
	}
	response.JSON(w, r, http.StatusOK, resp)
}
