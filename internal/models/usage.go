package models

import "time"

// UsageLogEntry — неизменяемый факт расхода токенов одним вызовом.
type UsageLogEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Endpoint     string    `json:"endpoint"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	Model        *string   `json:"model,omitempty"`
	ProjectID    *string   `json:"projectId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Total возвращает суммарный расход записи.
func (e UsageLogEntry) Total() int64 {
	return e.InputTokens + e.OutputTokens
}

// UsageTotals — агрегат расхода за окно.
type UsageTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// SystemUsage — агрегат по всей системе.
type SystemUsage struct {
	TotalCalls  int64 `json:"totalCalls"`
	TotalTokens int64 `json:"totalTokens"`
	UniqueUsers int64 `json:"uniqueUsers"`
}

// UserUsage — строка отчёта администратора.
type UserUsage struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Calls        int64  `json:"calls"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	TotalTokens  int64  `json:"totalTokens"`
	DailyLimit   int64  `json:"dailyLimit"`
	MonthlyLimit int64  `json:"monthlyLimit"`
}

// UsageEvent публикуется в брокер после записи расхода.
type UsageEvent struct {
	EntryID      string    `json:"entry_id"`
	UserID       string    `json:"user_id"`
	Endpoint     string    `json:"endpoint"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
