package register

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*auth.Result)
	return res, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	valid := Request{Username: "jane_doe", Email: "jane@example.com", Password: "Secret123", InviteCode: "WELCOME1"}
	input := auth.RegisterInput{Username: valid.Username, Email: valid.Email, Password: valid.Password, InviteCode: valid.InviteCode}

	tests := []struct {
		name       string
		req        Request
		mockResp   *auth.Result
		mockErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			req:        valid,
			mockResp:   &auth.Result{User: models.PublicUser{ID: "u1", Username: "jane_doe"}, AccessToken: "a", RefreshToken: "r"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "bad username",
			req:        Request{Username: "jane doe", Email: valid.Email, Password: valid.Password, InviteCode: "WELCOME1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperr.CodeValidation,
		},
		{
			name:       "weak password",
			req:        Request{Username: "jane", Email: valid.Email, Password: "secretsecret", InviteCode: "WELCOME1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperr.CodeValidation,
		},
		{
			name:       "password over bcrypt limit",
			req:        Request{Username: "jane", Email: valid.Email, Password: "Aa1" + strings.Repeat("ж", 35), InviteCode: "WELCOME1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperr.CodeValidation,
		},
		{
			name:       "bad email",
			req:        Request{Username: "jane", Email: "jane", Password: valid.Password, InviteCode: "WELCOME1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperr.CodeValidation,
		},
		{
			name:       "used invite",
			req:        valid,
			mockErr:    apperr.Validation(apperr.CodeInvalidInvite, "invalid or already used invite code"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperr.CodeInvalidInvite,
		},
		{
			name:       "duplicate user",
			req:        valid,
			mockErr:    apperr.Conflict(apperr.CodeConflict, "username or email already in use"),
			wantStatus: http.StatusConflict,
			wantCode:   apperr.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(AuthServiceMock)
			if tt.mockResp != nil || tt.mockErr != nil {
				svc.On("Register", mock.Anything, input).Return(tt.mockResp, tt.mockErr).Once()
			}

			body, err := json.Marshal(tt.req)
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var got response.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.wantCode, got.Code)
			}
			svc.AssertExpectations(t)
		})
	}
}
