package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

var (
	// ErrUserExists is returned when the phone number is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidPhone is returned when the phone number is empty or malformed.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrUserNotFound is returned when a token is requested for an unknown identity.
	ErrUserNotFound = errors.New("user not found")
)

// Service provides identity registration and token operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// RegisterUser creates a new identity keyed by phone number.
func (s *Service) RegisterUser(ctx context.Context, phone, name, avatar string) (*store.User, error) {
	phone = strings.TrimSpace(phone)
	if !validPhone(phone) {
		return nil, ErrInvalidPhone
	}

	existing, err := s.store.GetUserByPhone(ctx, phone)
	if err == nil && existing != nil {
		return nil, ErrUserExists
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	user, err := s.store.CreateUser(ctx, phone, strings.TrimSpace(name), strings.TrimSpace(avatar))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// IssueToken returns a signed token for an existing identity.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Phone)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// validPhone accepts digits with an optional leading plus and common separators.
func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 3 && digits <= 15
}
