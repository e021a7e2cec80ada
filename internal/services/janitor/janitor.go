// Package janitor периодически удаляет просроченные сессии обновления.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
)

// DefaultInterval — период очистки по умолчанию.
const DefaultInterval = time.Hour

// SessionRepository удаляет сессии с истёкшим сроком.
type SessionRepository interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Janitor — фоновая очистка таблицы сессий.
type Janitor struct {
	repo     SessionRepository
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// New создает Janitor. Неположительный interval заменяется DefaultInterval.
func New(repo SessionRepository, log *slog.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		repo:     repo,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// Run выполняет очистку сразу и затем раз в interval до отмены ctx.
func (j *Janitor) Run(ctx context.Context) {
	j.Sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("session janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep удаляет просроченные сессии и возвращает их число.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	const op = "janitor.Sweep"
	log := j.log.With(slog.String("op", op))

	n, err := j.repo.DeleteExpiredSessions(ctx, j.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			log.Error("failed to delete expired sessions", sl.Err(err))
		}
		return 0
	}
	if n > 0 {
		log.Info("expired sessions removed", slog.Int64("count", n))
	}
	return n
}
