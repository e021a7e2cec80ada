package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   ErrorResponse
	}{
		{
			name:       "quota",
			err:        apperr.RateLimited(apperr.CodeDailyLimit, "Daily token limit exceeded"),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   ErrorResponse{Status: "Error", Error: "Daily token limit exceeded", Code: "DAILY_LIMIT"},
		},
		{
			name:       "unknown error hides cause",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrorResponse{Status: "Error", Error: "internal server error", Code: "INTERNAL_ERROR"},
		},
		{
			name:       "breaker open",
			err:        apperr.Unavailable("AI service temporarily unavailable, try again shortly", nil),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   ErrorResponse{Status: "Error", Error: "AI service temporarily unavailable, try again shortly", Code: "SERVICE_UNAVAILABLE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			WriteError(rec, req, newNoopLogger(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestValidationError(t *testing.T) {
	type input struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
	}
	err := validator.New().Struct(input{Email: "nope", Password: "short"})
	require.Error(t, err)

	got := ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, apperr.CodeValidation, got.Code)
	assert.Equal(t, "field Email must be a valid email, field Password must be at least 8 characters long", got.Error)
}
