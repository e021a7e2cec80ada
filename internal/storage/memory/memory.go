// Package memory реализует хранилище шлюза в памяти процесса.
// Используется в тестах сервисов и HTTP-слоя вместо PostgreSQL и повторяет
// его контракты, включая атомарный расход инвайт-кодов и ротацию сессий.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/repository"
)

// Store — потокобезопасное хранилище в памяти.
type Store struct {
	mu       sync.Mutex
	users    map[string]models.User
	invites  map[string]models.InviteCode
	sessions map[string]models.Session
	usage    []models.UsageLogEntry
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		invites:  make(map[string]models.InviteCode),
		sessions: make(map[string]models.Session),
	}
}

func (s *Store) CreateInviteCode(_ context.Context, invite models.InviteCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invites[invite.Code]; ok {
		return repository.ErrConflict
	}
	invite.Used = false
	s.invites[invite.Code] = invite
	return nil
}

func (s *Store) GetInviteCode(_ context.Context, code string) (*models.InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) CreateUserWithInvite(_ context.Context, user models.User, inviteCode string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[inviteCode]
	if !ok || inv.Used {
		return nil, repository.ErrInviteUnavailable
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return nil, repository.ErrConflict
		}
	}

	user.CreatedAt = now
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	s.users[user.ID] = user

	usedAt := now
	uid := user.ID
	inv.Used = true
	inv.UsedAt = &usedAt
	inv.UsedBy = &uid
	s.invites[inviteCode] = inv

	return cloneUser(user), nil
}

// PutUser сохраняет пользователя напрямую, минуя регистрацию.
func (s *Store) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) IncrementFailedLogins(_ context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		t := lockUntil
		u.LockedUntil = &t
	}
	s.users[id] = u

	if u.LockedUntil == nil {
		return u.FailedLoginAttempts, nil, nil
	}
	t := *u.LockedUntil
	return u.FailedLoginAttempts, &t, nil
}

func (s *Store) ResetFailedLogins(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	s.users[id] = u
	return nil
}

func (s *Store) CompleteLogin(_ context.Context, id string, newHash *string, at time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	last := at
	u.LastLoginAt = &last
	if newHash != nil {
		u.PasswordHash = *newHash
	}
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *Store) CountLegacyPasswords(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.users {
		if strings.HasPrefix(u.PasswordHash, "plain:") {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateSession(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.TokenHash]; ok {
		return repository.ErrConflict
	}
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) RotateSession(_ context.Context, oldHash string, next models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[oldHash]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.sessions[next.TokenHash]; ok {
		return repository.ErrConflict
	}
	delete(s.sessions, oldHash)
	s.sessions[next.TokenHash] = next
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

// SessionCount возвращает число живых записей сессий пользователя.
func (s *Store) SessionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) InsertUsage(_ context.Context, entry models.UsageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage = append(s.usage, entry)
	return nil
}

func (s *Store) SumUsage(_ context.Context, userID string, from, to time.Time) (models.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t models.UsageTotals
	for _, e := range s.usage {
		if e.UserID != userID || e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		t.Input += e.InputTokens
		t.Output += e.OutputTokens
	}
	t.Total = t.Input + t.Output
	return t, nil
}

func (s *Store) ListUsage(_ context.Context, userID string, limit int) ([]models.UsageLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.UsageLogEntry, 0)
	for _, e := range s.usage {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) SystemUsage(_ context.Context, from time.Time) (models.SystemUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u models.SystemUsage
	seen := make(map[string]struct{})
	for _, e := range s.usage {
		if e.CreatedAt.Before(from) {
			continue
		}
		u.TotalCalls++
		u.TotalTokens += e.Total()
		seen[e.UserID] = struct{}{}
	}
	u.UniqueUsers = int64(len(seen))
	return u, nil
}

func (s *Store) UsageByUser(_ context.Context, from time.Time) ([]models.UserUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser := make(map[string]*models.UserUsage)
	for _, e := range s.usage {
		if e.CreatedAt.Before(from) {
			continue
		}
		r, ok := byUser[e.UserID]
		if !ok {
			u := s.users[e.UserID]
			r = &models.UserUsage{
				UserID:       e.UserID,
				Username:     u.Username,
				DailyLimit:   u.DailyTokenLimit,
				MonthlyLimit: u.MonthlyTokenLimit,
			}
			byUser[e.UserID] = r
		}
		r.Calls++
		r.InputTokens += e.InputTokens
		r.OutputTokens += e.OutputTokens
		r.TotalTokens += e.Total()
	}

	report := make([]models.UserUsage, 0, len(byUser))
	for _, r := range byUser {
		report = append(report, *r)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].TotalTokens != report[j].TotalTokens {
			return report[i].TotalTokens > report[j].TotalTokens
		}
		return report[i].Username < report[j].Username
	})
	return report, nil
}

func cloneUser(u models.User) *models.User {
	c := u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
