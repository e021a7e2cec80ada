// Package usage ведёт журнал расхода токенов и проверяет квоты пользователей.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/window"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// Границы выборки истории.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// DefaultReportTTL — время жизни кэшированного отчёта администратора.
const DefaultReportTTL = 30 * time.Second

// Store — хранилище журнала расхода.
type Store interface {
	InsertUsage(ctx context.Context, entry models.UsageLogEntry) error
	SumUsage(ctx context.Context, userID string, from, to time.Time) (models.UsageTotals, error)
	ListUsage(ctx context.Context, userID string, limit int) ([]models.UsageLogEntry, error)
	SystemUsage(ctx context.Context, from time.Time) (models.SystemUsage, error)
	UsageByUser(ctx context.Context, from time.Time) ([]models.UserUsage, error)
}

// Cache — кэш производных отчётов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Publisher доставляет события расхода внешним потребителям.
type Publisher interface {
	PublishUsage(ctx context.Context, event models.UsageEvent) error
}

// RecordInput — факт расхода одного вызова.
type RecordInput struct {
	UserID       string
	Endpoint     string
	InputTokens  int64
	OutputTokens int64
	Model        *string
	ProjectID    *string
}

// AdminReport — сводка расхода за текущий месяц.
type AdminReport struct {
	Period string             `json:"period"`
	System models.SystemUsage `json:"system"`
	Users  []models.UserUsage `json:"users"`
}

// Ledger — журнал расхода токенов. Записи только добавляются.
type Ledger struct {
	log       *slog.Logger
	store     Store
	cache     Cache
	reportTTL time.Duration
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// LedgerOption настраивает Ledger.
type LedgerOption func(*Ledger)

// WithCache включает кэширование отчёта администратора.
func WithCache(c Cache, ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		l.cache = c
		if ttl > 0 {
			l.reportTTL = ttl
		}
	}
}

// WithPublisher включает публикацию событий usage.recorded.
func WithPublisher(p Publisher) LedgerOption {
	return func(l *Ledger) { l.publisher = p }
}

// WithMetrics подключает счётчики Prometheus.
func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger создаёт журнал.
func NewLedger(log *slog.Logger, store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		log:       log,
		store:     store,
		reportTTL: DefaultReportTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record добавляет запись в журнал.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*models.UsageLogEntry, error) {
	const op = "usage.Record"
	log := l.log.With(slog.String("op", op), sl.UserID(in.UserID))

	if in.InputTokens < 0 || in.OutputTokens < 0 {
		return nil, apperr.Validation(apperr.CodeValidation, "token counts must not be negative")
	}

	entry := models.UsageLogEntry{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Endpoint:     in.Endpoint,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		Model:        in.Model,
		ProjectID:    in.ProjectID,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.store.InsertUsage(ctx, entry); err != nil {
		log.Error("failed to record usage", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	l.metrics.TokensRecorded(entry.InputTokens, entry.OutputTokens)

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, reportKey(entry.CreatedAt)); err != nil {
			log.Warn("failed to invalidate usage report", sl.Err(err))
		}
	}
	if l.publisher != nil {
		event := models.UsageEvent{
			EntryID:      entry.ID,
			UserID:       entry.UserID,
			Endpoint:     entry.Endpoint,
			InputTokens:  entry.InputTokens,
			OutputTokens: entry.OutputTokens,
			CreatedAt:    entry.CreatedAt,
		}
		if entry.Model != nil {
			event.Model = *entry.Model
		}
		if err := l.publisher.PublishUsage(ctx, event); err != nil {
			log.Warn("failed to publish usage event", sl.Err(err))
		}
	}
	return &entry, nil
}

// DailyTotal возвращает расход пользователя за текущие сутки UTC.
func (l *Ledger) DailyTotal(ctx context.Context, userID string) (models.UsageTotals, error) {
	return l.total(ctx, userID, window.Day(l.now()))
}

// MonthlyTotal возвращает расход пользователя за текущий календарный месяц UTC.
func (l *Ledger) MonthlyTotal(ctx context.Context, userID string) (models.UsageTotals, error) {
	return l.total(ctx, userID, window.Month(l.now()))
}

func (l *Ledger) total(ctx context.Context, userID string, w window.Window) (models.UsageTotals, error) {
	t, err := l.store.SumUsage(ctx, userID, w.Start, w.End)
	if err != nil {
		return models.UsageTotals{}, apperr.Internal(err)
	}
	return t, nil
}

// ClampHistoryLimit приводит запрошенный размер истории к [1, MaxHistoryLimit].
// Значение по умолчанию для отсутствующего параметра подставляет вызывающая сторона.
func ClampHistoryLimit(limit int) int {
	return min(max(limit, 1), MaxHistoryLimit)
}

// History возвращает последние записи пользователя.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.UsageLogEntry, error) {
	entries, err := l.store.ListUsage(ctx, userID, ClampHistoryLimit(limit))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if entries == nil {
		entries = []models.UsageLogEntry{}
	}
	return entries, nil
}

// AdminReport возвращает сводку за текущий месяц, по возможности из кэша.
func (l *Ledger) AdminReport(ctx context.Context) (*AdminReport, error) {
	const op = "usage.AdminReport"
	log := l.log.With(slog.String("op", op))

	now := l.now()
	key := reportKey(now)
	if l.cache != nil {
		var cached AdminReport
		found, err := l.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("usage report cache read failed", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	w := window.Month(now)
	system, err := l.store.SystemUsage(ctx, w.Start)
	if err != nil {
		log.Error("failed to aggregate system usage", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	users, err := l.store.UsageByUser(ctx, w.Start)
	if err != nil {
		log.Error("failed to aggregate usage by user", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	if users == nil {
		users = []models.UserUsage{}
	}

	report := &AdminReport{Period: w.Start.Format("2006-01"), System: system, Users: users}
	if l.cache != nil {
		if err = l.cache.Set(ctx, key, report, l.reportTTL); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("usage report cache write failed", sl.Err(err))
		}
	}
	return report, nil
}

func reportKey(t time.Time) string {
	return "usage:admin:" + t.UTC().Format("2006-01")
}
