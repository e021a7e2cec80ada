package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
)

// QuotaChecker проверяет квоты пользователя.
type QuotaChecker interface {
	Check(ctx context.Context, userID string, estimate int64) error
}

// Estimator оценивает расход токенов запроса до его выполнения.
// Nil-оценщик означает нулевую оценку.
type Estimator func(r *http.Request) int64

// QuotaMiddleware отклоняет запрос с 429 до вызова обработчика, если квота исчерпана.
// Должен стоять после RequireAuth.
func QuotaMiddleware(log *slog.Logger, checker QuotaChecker, estimate Estimator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.QuotaMiddleware"
			log := log.With(slog.String("op", op))

			id, ok := IdentityFrom(r.Context())
			if !ok || !id.Authenticated {
				response.WriteError(w, r, log, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token"))
				return
			}

			var n int64
			if estimate != nil {
				n = estimate(r)
			}
			if err := checker.Check(r.Context(), id.UserID, n); err != nil {
				if apperr.Is(err, apperr.KindRateLimit) {
					log.Info("quota exceeded", sl.UserID(id.UserID), slog.Int64("estimate", n))
				}
				response.WriteError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
