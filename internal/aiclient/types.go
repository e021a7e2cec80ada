package aiclient

import "fmt"

// EditRequest — запрос на редактирование фрагмента рукописи.
type EditRequest struct {
	Text         string `json:"text"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model"`
}

// Usage — расход токенов, посчитанный провайдером.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// EditResponse — ответ провайдера.
type EditResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// StatusError — провайдер ответил статусом, отличным от 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}
