package operatorauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the payload carried by an operator access token.
type Claims struct {
	Role         string `json:"role"`
	TokenVersion int    `json:"ver"`
	jwt.RegisteredClaims
}

// Service issues and verifies operator credentials and JWT access
// tokens.
type Service struct {
	repo       Repository
	signingKey []byte
	ttl        time.Duration
}

// NewService builds an operator auth service. signingKey must be stable
// across process restarts; rotating it invalidates every outstanding
// token.
func NewService(repo Repository, signingKey []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{repo: repo, signingKey: signingKey, ttl: ttl}
}

// Register provisions a new operator account with a bcrypt-hashed
// password.
func (s *Service) Register(ctx context.Context, creds Credentials, role string) (Operator, error) {
	if len(creds.Password) < 8 {
		return Operator{}, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, err
	}
	o := Operator{
		ID:           uuid.NewString(),
		Username:     creds.Username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return Operator{}, err
	}
	return o, nil
}

// Authenticate verifies credentials and, on success, issues a signed
// access token.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (string, time.Time, error) {
	o, err := s.repo.FindByUsername(ctx, creds.Username)
	if err != nil {
		return "", time.Time{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(o.PasswordHash, []byte(creds.Password)); err != nil {
		return "", time.Time{}, errors.New("invalid credentials")
	}
	return s.issue(o)
}

func (s *Service) issue(o Operator) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role:         o.Role,
		TokenVersion: o.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   o.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates an access token, then confirms its token
// version still matches the operator's current record — logging out
// bumps the version and invalidates every previously issued token.
func (s *Service) Verify(ctx context.Context, tokenString string) (Operator, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Operator{}, errors.New("invalid token")
	}

	o, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return Operator{}, errors.New("operator not found")
	}
	if o.TokenVersion != claims.TokenVersion {
		return Operator{}, errors.New("token invalidated")
	}
	return o, nil
}

// Logout bumps the operator's token version, invalidating every
// previously issued access token.
func (s *Service) Logout(ctx context.Context, operatorID string) error {
	return s.repo.IncrementTokenVersion(ctx, operatorID)
}
