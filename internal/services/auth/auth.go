// Package auth содержит бизнес-логику аутентификации: регистрацию по инвайт-коду,
// вход с защитой от перебора, ротацию токенов обновления и выход.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/jwt"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/password"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/repository"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 8

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Store описывает контракт хранилища учётных записей и сессий.
type Store interface {
	GuardStore

	CreateUserWithInvite(ctx context.Context, user models.User, inviteCode string, now time.Time) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	CompleteLogin(ctx context.Context, id string, newHash *string, at time.Time) (*models.User, error)

	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	RotateSession(ctx context.Context, oldHash string, next models.Session) error

	CreateInviteCode(ctx context.Context, invite models.InviteCode) error
}

// Result — пара токенов и санитизированный пользователь.
type Result struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	InviteCode string
}

// Options — параметры сервиса, приходящие из конфигурации.
type Options struct {
	MaxFailedLogins     int
	LockoutDuration     time.Duration
	RefreshTTL          time.Duration
	DefaultDailyLimit   int64
	DefaultMonthlyLimit int64
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics подключает счётчики Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service отвечает за регистрацию, вход, обновление токенов и выход.
type Service struct {
	log     *slog.Logger
	store   Store
	hasher  *password.Hasher
	tokens  jwt.Maker
	guard   *Guard
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time

	// dummyHash выравнивает время ответа для несуществующих пользователей.
	dummyHash string
}

// New создаёт сервис аутентификации.
func New(log *slog.Logger, store Store, hasher *password.Hasher, tokens jwt.Maker, opts Options, options ...Option) *Service {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = jwt.RefreshTokenTTL
	}
	s := &Service{
		log:    log,
		store:  store,
		hasher: hasher,
		tokens: tokens,
		opts:   opts,
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	s.guard = NewGuard(store, opts.MaxFailedLogins, opts.LockoutDuration, s.now)
	if h, err := hasher.Hash(uuid.NewString()); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register создаёт пользователя по инвайт-коду и выдаёт пару токенов.
// Хеширование выполняется до транзакции: она не должна ждать bcrypt.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	const op = "auth.Register"
	log := s.log.With(slog.String("op", op), slog.String("username", in.Username))

	if len(in.Password) < MinPasswordLength {
		return nil, apperr.Validation(apperr.CodeValidation, "password must be at least 8 characters")
	}
	if strings.TrimSpace(in.InviteCode) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInvite, "invite code is required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, password.ErrTooLong) {
		return nil, apperr.Validation(apperr.CodeValidation, "password must be at most 72 bytes")
	}
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return nil, apperr.Internal(err)
	}

	user := models.User{
		ID:                uuid.NewString(),
		Username:          strings.TrimSpace(in.Username),
		Email:             strings.TrimSpace(in.Email),
		PasswordHash:      hash,
		Role:              models.RoleUser,
		IsActive:          true,
		DailyTokenLimit:   s.opts.DefaultDailyLimit,
		MonthlyTokenLimit: s.opts.DefaultMonthlyLimit,
	}

	created, err := s.store.CreateUserWithInvite(ctx, user, strings.TrimSpace(in.InviteCode), s.now().UTC())
	switch {
	case errors.Is(err, repository.ErrInviteUnavailable):
		s.metrics.AuthAttempt("register", metrics.OutcomeFailure)
		log.Info("registration rejected: invite code unavailable")
		return nil, apperr.Validation(apperr.CodeInvalidInvite, "invalid or already used invite code")
	case errors.Is(err, repository.ErrConflict):
		s.metrics.AuthAttempt("register", metrics.OutcomeFailure)
		log.Info("registration rejected: identity taken")
		return nil, apperr.Conflict(apperr.CodeConflict, "username or email already in use")
	case err != nil:
		log.Error("failed to create user", sl.Err(err))
		return nil, apperr.Internal(err)
	}

	log.Info("user registered", sl.UserID(created.ID))
	s.metrics.AuthAttempt("register", metrics.OutcomeSuccess)
	return s.issue(ctx, created)
}

// Login проверяет учётные данные по email или username без учёта регистра.
func (s *Service) Login(ctx context.Context, identifier, rawPassword string) (*Result, error) {
	const op = "auth.Login"
	log := s.log.With(slog.String("op", op))

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || rawPassword == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "identifier and password are required")
	}

	user, err := s.store.GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(s.dummyHash, rawPassword)
		s.metrics.AuthAttempt("login", metrics.OutcomeFailure)
		return nil, invalidCredentials()
	}
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	log = log.With(sl.UserID(user.ID))

	if err = s.guard.Admit(ctx, user); err != nil {
		if apperr.Is(err, apperr.KindRateLimit) {
			s.metrics.AuthAttempt("login", metrics.OutcomeLocked)
			log.Warn("login rejected: account locked")
		} else {
			log.Error("failed to reset expired lockout", sl.Err(err))
		}
		return nil, err
	}

	format, ok := s.hasher.Verify(user.PasswordHash, rawPassword)
	if !ok {
		locked, err := s.guard.RecordFailure(ctx, user)
		if err != nil {
			log.Error("failed to record login failure", sl.Err(err))
			return nil, err
		}
		if locked {
			log.Warn("account locked after repeated failures", slog.Int("attempts", user.FailedLoginAttempts))
		}
		s.metrics.AuthAttempt("login", metrics.OutcomeFailure)
		return nil, invalidCredentials()
	}

	if !user.IsActive {
		s.metrics.AuthAttempt("login", metrics.OutcomeFailure)
		log.Info("login rejected: account disabled")
		return nil, apperr.Forbidden(apperr.CodeAccountDisabled, "account is disabled")
	}

	var newHash *string
	if password.NeedsRehash(format) {
		h, err := s.hasher.Hash(rawPassword)
		if errors.Is(err, password.ErrTooLong) {
			// такой пароль не переносится в bcrypt без изменения
			s.metrics.AuthAttempt("login", metrics.OutcomeFailure)
			log.Warn("legacy password exceeds bcrypt limit, reset required")
			return nil, apperr.Validation(apperr.CodePasswordReset, "password must be reset before signing in")
		}
		if err != nil {
			log.Error("failed to rehash legacy password", sl.Err(err))
			return nil, apperr.Internal(err)
		}
		newHash = &h
	}

	fresh, err := s.store.CompleteLogin(ctx, user.ID, newHash, s.now().UTC())
	if err != nil {
		log.Error("failed to complete login", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	if newHash != nil {
		log.Info("legacy password migrated to bcrypt")
	}

	s.metrics.AuthAttempt("login", metrics.OutcomeSuccess)
	return s.issue(ctx, fresh)
}

// Refresh обменивает токен обновления на новую пару. Предъявленный токен
// перестаёт действовать в момент выдачи нового.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	const op = "auth.Refresh"
	log := s.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil, invalidRefresh()
	}
	oldHash := jwt.HashRefreshToken(refreshToken)

	sess, err := s.store.GetSession(ctx, oldHash)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.AuthAttempt("refresh", metrics.OutcomeInvalid)
		return nil, invalidRefresh()
	}
	if err != nil {
		log.Error("failed to load session", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	log = log.With(sl.UserID(sess.UserID))

	now := s.now().UTC()
	if sess.Expired(now) {
		s.dropSession(ctx, log, oldHash)
		s.metrics.AuthAttempt("refresh", metrics.OutcomeExpired)
		return nil, apperr.Unauthenticated(apperr.CodeExpired, "refresh token expired")
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error("failed to load user", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	if user == nil || !user.IsActive {
		s.dropSession(ctx, log, oldHash)
		s.metrics.AuthAttempt("refresh", metrics.OutcomeInvalid)
		return nil, invalidRefresh()
	}

	access, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		log.Error("failed to sign access token", sl.Err(err))
		return nil, apperr.Internal(err)
	}
	refresh, next, err := s.newSession(user.ID, now)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, apperr.Internal(err)
	}

	err = s.store.RotateSession(ctx, oldHash, next)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("refresh token already rotated by a concurrent request")
		s.metrics.AuthAttempt("refresh", metrics.OutcomeInvalid)
		return nil, invalidRefresh()
	}
	if err != nil {
		log.Error("failed to rotate session", sl.Err(err))
		return nil, apperr.Internal(err)
	}

	s.metrics.AuthAttempt("refresh", metrics.OutcomeSuccess)
	return &Result{User: user.Public(), AccessToken: access, RefreshToken: refresh}, nil
}

// Logout удаляет сессию. Никогда не сообщает, существовал ли токен.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	s.dropSession(ctx, s.log.With(slog.String("op", "auth.Logout")), jwt.HashRefreshToken(refreshToken))
}

// Me возвращает санитизированного пользователя.
func (s *Service) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthenticated(apperr.CodeInvalid, "user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	pub := user.Public()
	return &pub, nil
}

// CreateInvite создаёт инвайт-код от имени администратора. Пустой code заменяется случайным.
func (s *Service) CreateInvite(ctx context.Context, adminID, code string) (*models.InviteCode, error) {
	const op = "auth.CreateInvite"

	code = strings.TrimSpace(code)
	if code == "" {
		code = randomInviteCode(8)
	}
	creator := adminID
	invite := models.InviteCode{
		ID:        uuid.NewString(),
		Code:      code,
		CreatedBy: &creator,
		CreatedAt: s.now().UTC(),
	}

	err := s.store.CreateInviteCode(ctx, invite)
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperr.Conflict(apperr.CodeConflict, "invite code already exists")
	}
	if err != nil {
		s.log.Error("failed to create invite", slog.String("op", op), sl.Err(err))
		return nil, apperr.Internal(err)
	}
	s.log.Info("invite created", slog.String("op", op), sl.UserID(adminID))
	return &invite, nil
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Result, error) {
	access, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refresh, session, err := s.newSession(user.ID, s.now().UTC())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err = s.store.CreateSession(ctx, session); err != nil {
		s.log.Error("failed to create session", sl.UserID(user.ID), sl.Err(err))
		return nil, apperr.Internal(err)
	}
	return &Result{User: user.Public(), AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) newSession(userID string, now time.Time) (string, models.Session, error) {
	token, err := jwt.NewRefreshToken()
	if err != nil {
		return "", models.Session{}, err
	}
	return token, models.Session{
		TokenHash: jwt.HashRefreshToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.opts.RefreshTTL),
		CreatedAt: now,
	}, nil
}

func (s *Service) dropSession(ctx context.Context, log *slog.Logger, tokenHash string) {
	if err := s.store.DeleteSession(ctx, tokenHash); err != nil {
		log.Warn("failed to delete session", sl.Err(err))
	}
}

func invalidCredentials() error {
	return apperr.Unauthenticated(apperr.CodeInvalidCredentials, "invalid credentials")
}

func invalidRefresh() error {
	return apperr.Unauthenticated(apperr.CodeInvalid, "invalid refresh token")
}

func randomInviteCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = inviteAlphabet[int(b[i])%len(inviteAlphabet)]
	}
	return string(b)
}
