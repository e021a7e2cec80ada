package middlewarectx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
)

type QuotaCheckerMock struct {
	mock.Mock
}

func (m *QuotaCheckerMock) Check(ctx context.Context, userID string, estimate int64) error {
	return m.Called(ctx, userID, estimate).Error(0)
}

func TestQuotaMiddleware(t *testing.T) {
	user := middlewarectx.Identity{UserID: "u1", Username: "alice", Authenticated: true}

	tests := []struct {
		name       string
		identity   *middlewarectx.Identity
		checkErr   error
		wantStatus int
		wantBody   string
	}{
		{name: "anonymous", identity: &middlewarectx.Anonymous, wantStatus: http.StatusUnauthorized},
		{name: "within quota", identity: &user, wantStatus: http.StatusOK},
		{
			name:       "daily exceeded",
			identity:   &user,
			checkErr:   apperr.RateLimited(apperr.CodeDailyLimit, "Daily token limit exceeded"),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   "Daily token limit exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(QuotaCheckerMock)
			if tt.identity.Authenticated {
				checker.On("Check", mock.Anything, "u1", int64(42)).Return(tt.checkErr).Once()
			}
			called := false
			handler := middlewarectx.QuotaMiddleware(newNoopLogger(), checker, func(*http.Request) int64 { return 42 })(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					called = true
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(http.MethodPost, "/api/edit", nil)
			req = req.WithContext(middlewarectx.WithIdentity(req.Context(), *tt.identity))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, decodeError(t, rec).Error)
			}
			checker.AssertExpectations(t)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := middlewarectx.NewIPRateLimiter(1, 2)
	handler := middlewarectx.RateLimitMiddleware(newNoopLogger(), limiter)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	// Другой адрес имеет собственный запас.
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
}
