package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

type LedgerMock struct {
	mock.Mock
}

func (m *LedgerMock) History(ctx context.Context, userID string, limit int) ([]models.UsageLogEntry, error) {
	args := m.Called(ctx, userID, limit)
	entries, _ := args.Get(0).([]models.UsageLogEntry)
	return entries, args.Error(1)
}

func TestHistoryHandler_Limit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 50},
		{query: "?limit=abc", want: 50},
		{query: "?limit=0", want: 0},
		{query: "?limit=-5", want: -5},
		{query: "?limit=10", want: 10},
		{query: "?limit=500", want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := new(LedgerMock)
			svc.On("History", mock.Anything, "u1", tt.want).Return([]models.UsageLogEntry{}, nil).Once()

			req := httptest.NewRequest(http.MethodGet, "/api/usage/history"+tt.query, nil)
			req = req.WithContext(middlewarectx.WithIdentity(req.Context(), middlewarectx.Identity{UserID: "u1", Authenticated: true}))
			rec := httptest.NewRecorder()
			New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var body map[string][]models.UsageLogEntry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotNil(t, body["history"])
			svc.AssertExpectations(t)
		})
	}
}
