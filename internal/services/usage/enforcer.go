package usage

import (
	"context"
	"errors"
	"math"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/repository"
)

// Сообщения об отказе по квоте.
const (
	MsgRestricted   = "Token usage is restricted for this account"
	MsgDailyLimit   = "Daily token limit exceeded"
	MsgMonthlyLimit = "Monthly token limit exceeded"
)

// UserStore отдаёт актуальные лимиты пользователя.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// WindowSummary — расход и лимит за одно окно.
type WindowSummary struct {
	Input        int64 `json:"input"`
	Output       int64 `json:"output"`
	Total        int64 `json:"total"`
	Limit        int64 `json:"limit"`
	Percentage   *int  `json:"percentage"`
	IsUnlimited  bool  `json:"isUnlimited"`
	IsRestricted bool  `json:"isRestricted"`
}

// Summary — расход за сутки и за месяц.
type Summary struct {
	Daily   WindowSummary `json:"daily"`
	Monthly WindowSummary `json:"monthly"`
}

// Enforcer проверяет квоты до выполнения квотируемой операции.
type Enforcer struct {
	users   UserStore
	ledger  *Ledger
	metrics *metrics.Metrics
}

// NewEnforcer создаёт Enforcer.
func NewEnforcer(users UserStore, ledger *Ledger, m *metrics.Metrics) *Enforcer {
	return &Enforcer{users: users, ledger: ledger, metrics: m}
}

// Check отклоняет операцию, если квота исчерпана.
//
// Лимит -1 пропускает всегда, 0 отклоняет всегда. Для положительного лимита
// отказ происходит, если расход за окно уже достиг лимита, а при estimate > 0
// ещё и если оценка расхода операции выводит окно за лимит.
func (e *Enforcer) Check(ctx context.Context, userID string, estimate int64) error {
	user, err := e.user(ctx, userID)
	if err != nil {
		return err
	}

	if user.DailyTokenLimit == models.LimitRestricted || user.MonthlyTokenLimit == models.LimitRestricted {
		e.metrics.QuotaRejected("restricted")
		return apperr.RateLimited(apperr.CodeRestricted, MsgRestricted)
	}

	if user.DailyTokenLimit > 0 {
		t, err := e.ledger.DailyTotal(ctx, userID)
		if err != nil {
			return err
		}
		if exceeds(t.Total, user.DailyTokenLimit, estimate) {
			e.metrics.QuotaRejected("daily")
			return apperr.RateLimited(apperr.CodeDailyLimit, MsgDailyLimit)
		}
	}

	if user.MonthlyTokenLimit > 0 {
		t, err := e.ledger.MonthlyTotal(ctx, userID)
		if err != nil {
			return err
		}
		if exceeds(t.Total, user.MonthlyTokenLimit, estimate) {
			e.metrics.QuotaRejected("monthly")
			return apperr.RateLimited(apperr.CodeMonthlyLimit, MsgMonthlyLimit)
		}
	}
	return nil
}

// Summary возвращает расход и проценты использования для отображения.
func (e *Enforcer) Summary(ctx context.Context, userID string) (*Summary, error) {
	user, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	daily, err := e.ledger.DailyTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	monthly, err := e.ledger.MonthlyTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Daily:   summarize(daily, user.DailyTokenLimit),
		Monthly: summarize(monthly, user.MonthlyTokenLimit),
	}, nil
}

func (e *Enforcer) user(ctx context.Context, userID string) (*models.User, error) {
	user, err := e.users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthenticated(apperr.CodeInvalid, "user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func exceeds(total, limit, estimate int64) bool {
	if total >= limit {
		return true
	}
	return estimate > 0 && total+estimate > limit
}

func summarize(t models.UsageTotals, limit int64) WindowSummary {
	return WindowSummary{
		Input:        t.Input,
		Output:       t.Output,
		Total:        t.Total,
		Limit:        limit,
		Percentage:   Percentage(t.Total, limit),
		IsUnlimited:  limit == models.LimitUnlimited,
		IsRestricted: limit == models.LimitRestricted,
	}
}

// Percentage возвращает round(100*total/limit), ограниченное [0, 100].
// Для лимитов -1 и 0 процент не определён и возвращается nil.
func Percentage(total, limit int64) *int {
	if limit <= 0 {
		return nil
	}
	p := int(math.Round(100 * float64(total) / float64(limit)))
	p = min(max(p, 0), 100)
	return &p
}
