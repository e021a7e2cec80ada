package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/manuscript-editor/internal/aiclient"
	"github.com/magabrotheeeer/manuscript-editor/internal/config"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/auth"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/memory"
)

// fakeUpstream отвечает заранее заданной последовательностью расходов.
type fakeUpstream struct {
	mu     sync.Mutex
	usages []aiclient.Usage
	status int
	calls  int
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	var in aiclient.EditRequest
	_ = json.NewDecoder(r.Body).Decode(&in)

	u := aiclient.Usage{InputTokens: 1, OutputTokens: 1}
	if len(f.usages) > 0 {
		u, f.usages = f.usages[0], f.usages[1:]
	}
	_ = json.NewEncoder(w).Encode(aiclient.EditResponse{
		Text:  strings.ToUpper(in.Text),
		Model: in.Model,
		Usage: u,
	})
}

func (f *fakeUpstream) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type env struct {
	t        *testing.T
	store    *memory.Store
	upstream *fakeUpstream
	services *Services
	server   *httptest.Server
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWTSecretKey = "0123456789abcdef0123456789abcdef"
	cfg.AccessTokenTTL = 15 * time.Minute
	cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.MaxFailedLogins = 5
	cfg.LockoutDuration = 15 * time.Minute
	cfg.BcryptCost = bcrypt.MinCost
	cfg.DefaultDailyLimit = 100
	cfg.DefaultMonthlyLimit = -1
	cfg.FailureThreshold = 5
	cfg.ResetTimeout = time.Minute
	cfg.ReportTTL = 30 * time.Second
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.Model = "editor-default"
	return cfg
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	require.NoError(t, store.CreateInviteCode(context.Background(), models.InviteCode{ID: "inv-1", Code: "WELCOME1", CreatedAt: time.Now()}))

	up := &fakeUpstream{}
	upServer := httptest.NewServer(up)
	t.Cleanup(upServer.Close)

	cfg := testConfig()
	services := NewServices(log, cfg, Deps{
		Store:    store,
		Upstream: aiclient.NewClient(upServer.URL, "test-key", cfg.Model, 5*time.Second),
		Metrics:  metrics.New(),
	})
	srv := httptest.NewServer(NewRouter(log, services))
	t.Cleanup(srv.Close)

	return &env{t: t, store: store, upstream: up, services: services, server: srv}
}

func (e *env) do(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *env) register(username, invite string) auth.Result {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"password":   "Secret123",
		"inviteCode": invite,
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	return decode[auth.Result](e.t, resp)
}

func (e *env) login(identifier, password string) auth.Result {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	return decode[auth.Result](e.t, resp)
}

func TestEndToEnd_QuotaScenario(t *testing.T) {
	e := newEnv(t)
	e.upstream.usages = []aiclient.Usage{
		{InputTokens: 10, OutputTokens: 10},
		{InputTokens: 5, OutputTokens: 5},
		{InputTokens: 6, OutputTokens: 4},
	}

	reg := e.register("jane_doe", "WELCOME1")
	assert.Equal(t, "jane_doe", reg.User.Username)
	assert.EqualValues(t, 100, reg.User.DailyTokenLimit)

	session := e.login("JANE_DOE@example.com", "Secret123")
	token := session.AccessToken

	for i, text := range []string{"first draft", "second draft", "third draft"} {
		resp := e.do(http.MethodPost, "/api/edit", token, map[string]string{"text": text})
		require.Equal(t, http.StatusOK, resp.StatusCode, "call %d", i+1)
	}

	resp := e.do(http.MethodGet, "/api/usage", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[usage.Summary](t, resp)
	assert.EqualValues(t, 40, s.Daily.Total)
	require.NotNil(t, s.Daily.Percentage)
	assert.Equal(t, 40, *s.Daily.Percentage)
	assert.True(t, s.Monthly.IsUnlimited)
	assert.Nil(t, s.Monthly.Percentage)

	// Оценка четвёртого вызова — 66 токенов при оставшихся 60.
	long := strings.Repeat("The chapter needs tightening. ", 4) + "Done."
	require.Len(t, []rune(long), 125)
	long += "!!!!"
	resp = e.do(http.MethodPost, "/api/edit", token, map[string]string{"text": long})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[response.ErrorResponse](t, resp)
	assert.Equal(t, "Daily token limit exceeded", body.Error)
	assert.Equal(t, apperr.CodeDailyLimit, body.Code)
	assert.Equal(t, 3, e.upstream.Calls())

	resp = e.do(http.MethodGet, "/api/usage/history?limit=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[map[string][]models.UsageLogEntry](t, resp)
	assert.Len(t, hist["history"], 2)
}

func TestEndToEnd_InviteIsSingleUse(t *testing.T) {
	e := newEnv(t)
	e.register("first", "WELCOME1")

	resp := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   "second",
		"email":      "second@example.com",
		"password":   "Secret123",
		"inviteCode": "WELCOME1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeInvalidInvite, decode[response.ErrorResponse](t, resp).Code)
}

func TestEndToEnd_RefreshRotationAndLogout(t *testing.T) {
	e := newEnv(t)
	reg := e.register("jane", "WELCOME1")

	resp := e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[auth.Result](t, resp)
	assert.NotEqual(t, reg.RefreshToken, rotated.RefreshToken)

	resp = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.CodeInvalid, decode[response.ErrorResponse](t, resp).Code)

	resp = e.do(http.MethodGet, "/api/auth/me", rotated.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]models.PublicUser](t, resp)
	assert.Equal(t, "jane", me["user"].Username)

	resp = e.do(http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": "never-issued"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEndToEnd_LockoutOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.register("jane", "WELCOME1")

	for i := 1; i <= 5; i++ {
		resp := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "jane", "password": "Wrong1234"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}
	resp := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "jane", "password": "Secret123"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, apperr.CodeAccountLocked, decode[response.ErrorResponse](t, resp).Code)
}

func TestEndToEnd_AdminRoutes(t *testing.T) {
	e := newEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("Admin1234"), bcrypt.MinCost)
	require.NoError(t, err)
	e.store.PutUser(models.User{
		ID: "admin-1", Username: "root", Email: "root@example.com", PasswordHash: string(hash),
		Role: models.RoleAdmin, IsActive: true, DailyTokenLimit: -1, MonthlyTokenLimit: -1,
	})

	user := e.register("jane", "WELCOME1")
	resp := e.do(http.MethodGet, "/api/admin/usage", user.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := e.login("root", "Admin1234")

	resp = e.do(http.MethodPost, "/api/admin/invites", admin.AccessToken, map[string]string{"code": "FRIENDS2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decode[map[string]models.InviteCode](t, resp)
	assert.Equal(t, "FRIENDS2", inv["invite"].Code)

	resp = e.do(http.MethodPost, "/api/admin/invites", admin.AccessToken, map[string]string{"code": "FRIENDS2"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/admin/invites", admin.AccessToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	generated := decode[map[string]models.InviteCode](t, resp)
	assert.Len(t, generated["invite"].Code, 8)

	e.register("friend", "FRIENDS2")

	resp = e.do(http.MethodPost, "/api/edit", user.AccessToken, map[string]string{"text": "draft"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodGet, "/api/admin/usage", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[usage.AdminReport](t, resp)
	assert.Equal(t, models.SystemUsage{TotalCalls: 1, TotalTokens: 2, UniqueUsers: 1}, rep.System)
	require.Len(t, rep.Users, 1)
	assert.Equal(t, "jane", rep.Users[0].Username)
}

func TestEndToEnd_BreakerOpens(t *testing.T) {
	e := newEnv(t)
	e.upstream.status = http.StatusBadGateway
	token := e.register("jane", "WELCOME1").AccessToken

	for i := 1; i <= 5; i++ {
		resp := e.do(http.MethodPost, "/api/edit", token, map[string]string{"text": "draft"})
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "call %d", i)
	}

	resp := e.do(http.MethodPost, "/api/edit", token, map[string]string{"text": "draft"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "AI service temporarily unavailable, try again shortly", decode[response.ErrorResponse](t, resp).Error)
	assert.Equal(t, 5, e.upstream.Calls())

	resp = e.do(http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[map[string]any](t, resp)
	assert.Equal(t, "OPEN", st["upstream"])
	assert.Equal(t, false, st["authenticated"])
}

func TestEndToEnd_StatusWithIdentity(t *testing.T) {
	e := newEnv(t)
	token := e.register("jane", "WELCOME1").AccessToken

	resp := e.do(http.MethodGet, "/api/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[map[string]any](t, resp)
	assert.Equal(t, "CLOSED", st["upstream"])
	assert.Equal(t, true, st["authenticated"])
	assert.Equal(t, "jane", st["username"])
	assert.Contains(t, st, "usage")
}

func TestEndToEnd_HealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	resp := e.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))

	e.register("jane", "WELCOME1")

	resp = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `editor_auth_attempts_total{operation="register",outcome="success"} 1`)
}

func TestEndToEnd_MissingToken(t *testing.T) {
	e := newEnv(t)

	resp := e.do(http.MethodGet, "/api/usage", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.CodeMissingToken, decode[response.ErrorResponse](t, resp).Code)
}
