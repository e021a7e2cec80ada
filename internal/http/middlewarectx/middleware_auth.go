// Package middlewarectx содержит HTTP middleware шлюза: допуск по токену доступа,
// проверку роли, проверку квот и ограничение частоты запросов.
//
// RequireAuth извлекает Bearer-токен, проверяет его подпись и срок действия,
// а затем заново читает пользователя из хранилища: роль и статус берутся из
// базы, а не из токена, поэтому понижение роли действует со следующего запроса.
// Ошибка хранилища при этом отдаётся как 500, а не как 401.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/jwt"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/repository"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// IdentityKey — ключ Identity в контексте запроса.
const IdentityKey Key = "identity"

// Identity — личность вызывающего, прикреплённая к запросу.
type Identity struct {
	UserID        string
	Username      string
	Role          models.Role
	Authenticated bool
}

// Anonymous — явная метка «личность не установлена».
var Anonymous = Identity{}

// IsAdmin сообщает, является ли вызывающий администратором.
func (i Identity) IsAdmin() bool {
	return i.Authenticated && i.Role == models.RoleAdmin
}

// WithIdentity возвращает контекст с прикреплённой личностью.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFrom достаёт личность из контекста. Второе значение false, если
// middleware допуска не выполнялся.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

// TokenParser проверяет токены доступа.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// UserStore отдаёт актуальную запись пользователя.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Gate — политики допуска запросов.
type Gate struct {
	log    *slog.Logger
	tokens TokenParser
	users  UserStore
}

// NewGate создаёт Gate.
func NewGate(log *slog.Logger, tokens TokenParser, users UserStore) *Gate {
	return &Gate{log: log, tokens: tokens, users: users}
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth пропускает только запросы с действительным токеном активного пользователя.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := g.logger(r, "middlewarectx.RequireAuth")

		id, err := g.authenticate(r)
		if err != nil {
			response.WriteError(w, r, log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin выполняет RequireAuth и дополнительно требует роль admin.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		if !id.IsAdmin() {
			log := g.logger(r, "middlewarectx.RequireAdmin")
			response.WriteError(w, r, log, apperr.Forbidden(apperr.CodeForbidden, "admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// OptionalAuth никогда не отклоняет запрос: при действительном токене прикрепляет
// личность, иначе прикрепляет Anonymous.
func (g *Gate) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.authenticate(r)
		if err != nil {
			if apperr.Is(err, apperr.KindInternal) {
				g.logger(r, "middlewarectx.OptionalAuth").Error("identity lookup failed, continuing anonymously", sl.Err(err))
			}
			id = Anonymous
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (g *Gate) authenticate(r *http.Request) (Identity, error) {
	token, ok := BearerToken(r)
	if !ok {
		return Anonymous, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token")
	}

	claims, err := g.tokens.ParseToken(token)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Anonymous, apperr.Unauthenticated(apperr.CodeExpired, "access token expired")
	case err != nil:
		return Anonymous, apperr.Unauthenticated(apperr.CodeInvalid, "invalid access token")
	}

	user, err := g.users.GetUser(r.Context(), claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Anonymous, apperr.Unauthenticated(apperr.CodeInvalid, "user not found or inactive")
	}
	if err != nil {
		return Anonymous, apperr.Internal(err)
	}
	if !user.IsActive {
		return Anonymous, apperr.Unauthenticated(apperr.CodeInvalid, "user not found or inactive")
	}

	return Identity{
		UserID:        user.ID,
		Username:      user.Username,
		Role:          user.Role,
		Authenticated: true,
	}, nil
}

func (g *Gate) logger(r *http.Request, op string) *slog.Logger {
	return g.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}
