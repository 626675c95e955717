package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quiz-api/internal/auth"
	"quiz-api/internal/domain"
)

// RegisterInput carries a validated registration payload.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Role        domain.Role
	AllowRetake bool
}

// Session is a signed token plus the sanitized user it belongs to.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// AuthService registers users, verifies credentials, and resolves bearer tokens.
type AuthService struct {
	users              UserRepository
	hasher             *auth.PasswordHasher
	tokens             *auth.TokenIssuer
	allowAdminRegister bool
	now                func() time.Time
}

func NewAuthService(users UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, allowAdminRegister bool) *AuthService {
	return &AuthService{
		users:              users,
		hasher:             hasher,
		tokens:             tokens,
		allowAdminRegister: allowAdminRegister,
		now:                time.Now,
	}
}

// Register stores a new user and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if !role.Valid() {
		return Session{}, domain.NewError(domain.KindValidation, "role must be one of [student, admin]")
	}
	if role == domain.RoleAdmin && !s.allowAdminRegister {
		return Session{}, domain.ErrAdminRegistrationDisabled
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.Create(ctx, domain.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Role:         role,
		AllowRetake:  in.AllowRetake,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Session{}, err
	}
	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, err
	}
	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate resolves a bearer token to a live user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, domain.ErrMissingToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrTokenUserGone
		}
		return domain.User{}, fmt.Errorf("resolve token user: %w", err)
	}
	return sanitize(user), nil
}

// Authorize fails with domain.ErrForbidden unless user holds one of roles.
func Authorize(user domain.User, roles ...domain.Role) error {
	for _, r := range roles {
		if user.Role == r {
			return nil
		}
	}
	return domain.ErrForbidden
}

func (s *AuthService) issue(user domain.User) (Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: sanitize(user)}, nil
}

func sanitize(user domain.User) domain.User {
	user.PasswordHash = ""
	return user
}
