// Package health отвечает на проверку живости процесса.
package health

import (
	"net/http"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
)

// Handler обрабатывает GET /healthz.
type Handler struct{}

// New создает Handler.
func New() *Handler {
	return &Handler{}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
