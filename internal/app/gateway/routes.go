// Package gateway собирает HTTP-шлюз редактора рукописей: сервисы, маршруты и
// фоновые задачи, и управляет их жизненным циклом.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/manuscript-editor/internal/config"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/admin/invite"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/edit"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/health"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/status"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/usage/history"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/usage/report"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/handlers/usage/summary"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/breaker"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/jwt"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/password"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/editor"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// Store — хранилище шлюза. Реализуется repository.Storage и memory.Store.
type Store interface {
	auth.Store
	usage.Store
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	CountLegacyPasswords(ctx context.Context) (int64, error)
}

// Deps — внешние зависимости маршрутизатора. Cache и Publisher необязательны.
type Deps struct {
	Store     Store
	Upstream  editor.Upstream
	Breaker   *breaker.Breaker
	Metrics   *metrics.Metrics
	Cache     usage.Cache
	Publisher usage.Publisher
	Now       func() time.Time
}

// Services — собранные сервисы шлюза.
type Services struct {
	Auth     *auth.Service
	Ledger   *usage.Ledger
	Enforcer *usage.Enforcer
	Editor   *editor.Service
	Gate     *middlewarectx.Gate
	Limiter  *middlewarectx.IPRateLimiter
	Breaker  *breaker.Breaker
	Metrics  *metrics.Metrics
}

// NewServices собирает сервисы из конфигурации и зависимостей.
func NewServices(log *slog.Logger, cfg *config.Config, d Deps) *Services {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.AccessTokenTTL, jwt.WithClock(now))
	authSvc := auth.New(log, d.Store, password.NewHasher(cfg.BcryptCost), tokens, auth.Options{
		MaxFailedLogins:     cfg.MaxFailedLogins,
		LockoutDuration:     cfg.LockoutDuration,
		RefreshTTL:          cfg.RefreshTokenTTL,
		DefaultDailyLimit:   cfg.DefaultDailyLimit,
		DefaultMonthlyLimit: cfg.DefaultMonthlyLimit,
	}, auth.WithClock(now), auth.WithMetrics(d.Metrics))

	ledgerOpts := []usage.LedgerOption{usage.WithClock(now), usage.WithMetrics(d.Metrics)}
	if d.Cache != nil {
		ledgerOpts = append(ledgerOpts, usage.WithCache(d.Cache, cfg.ReportTTL))
	}
	if d.Publisher != nil {
		ledgerOpts = append(ledgerOpts, usage.WithPublisher(d.Publisher))
	}
	ledger := usage.NewLedger(log, d.Store, ledgerOpts...)

	br := d.Breaker
	if br == nil {
		br = breaker.New(cfg.FailureThreshold, cfg.ResetTimeout, breaker.WithClock(now))
	}

	return &Services{
		Auth:     authSvc,
		Ledger:   ledger,
		Enforcer: usage.NewEnforcer(d.Store, ledger, d.Metrics),
		Editor:   editor.New(log, d.Upstream, br, ledger, d.Metrics),
		Gate:     middlewarectx.NewGate(log, tokens, d.Store),
		Limiter:  middlewarectx.NewIPRateLimiter(cfg.RPS, cfg.Burst),
		Breaker:  br,
		Metrics:  d.Metrics,
	}
}

// NewRouter возвращает маршрутизатор со всеми маршрутами шлюза.
func NewRouter(log *slog.Logger, s *Services) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, log, s)
	return r
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, log *slog.Logger, s *Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	gate := s.Gate

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RateLimitMiddleware(log, s.Limiter))
				r.Post("/register", register.New(log, s.Auth).ServeHTTP)
				r.Post("/login", login.New(log, s.Auth).ServeHTTP)
				r.Post("/refresh", refresh.New(log, s.Auth).ServeHTTP)
				r.Post("/logout", logout.New(log, s.Auth).ServeHTTP)
			})
			r.With(gate.RequireAuth).Get("/me", me.New(log, s.Auth).ServeHTTP)
		})

		r.With(gate.OptionalAuth).Get("/status", status.New(log, s.Breaker, s.Enforcer).ServeHTTP)

		// Группа с аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuth)
			r.Get("/usage", summary.New(log, s.Enforcer).ServeHTTP)
			r.Get("/usage/history", history.New(log, s.Ledger).ServeHTTP)
			r.With(middlewarectx.QuotaMiddleware(log, s.Enforcer, edit.Estimate)).
				Post("/edit", edit.New(log, s.Editor).ServeHTTP)
		})

		// Группа администратора
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAdmin)
			r.Get("/admin/usage", report.New(log, s.Ledger).ServeHTTP)
			r.Post("/admin/invites", invite.New(log, s.Auth).ServeHTTP)
		})
	})

	r.Get("/healthz", health.New().ServeHTTP)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
