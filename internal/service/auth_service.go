package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to create a new account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	Account      *domain.Account `json:"account"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Account      *domain.Account `json:"account"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
}

// TokenPair holds both tokens returned by generateTokenPair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"` // "access" or "refresh"
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService handles account registration, login, and JWT token operations.
type AuthService struct {
	accounts repository.AccountStore
	cfg      *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(accounts repository.AccountStore, cfg *config.Config) *AuthService {
	return &AuthService{accounts: accounts, cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register
// ──────────────────────────────────────────────────────────────────────────────

// Register creates a new account.  Balances start at zero; in dev mode the
// faucet endpoint hands out test collateral afterwards.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: hash: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         domain.RoleHolder,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	pair, err := s.generateTokenPair(account.ID, string(account.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: tokens: %w", err)
	}
	return &RegisterResponse{
		Account:      account,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login validates credentials and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		// Map not-found to a generic credential error to prevent enumeration.
		return nil, domain.ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	pair, err := s.generateTokenPair(account.ID, string(account.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: tokens: %w", err)
	}
	return &LoginResponse{
		Account:      account,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RefreshToken
// ──────────────────────────────────────────────────────────────────────────────

// RefreshToken validates a refresh token and issues a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}
	if claims.TokenType != "refresh" {
		return "", "", domain.ErrTokenInvalid
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", "", domain.ErrAccountNotFound
	}
	if !account.IsActive {
		return "", "", domain.ErrAccountInactive
	}

	pair, err := s.generateTokenPair(account.ID, string(account.Role))
	if err != nil {
		return "", "", fmt.Errorf("auth_service.RefreshToken: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair creates a signed access token (AccessTTL) and a signed
// refresh token (RefreshTTL) for the given account.
func (s *AuthService) generateTokenPair(accountID uuid.UUID, role string) (TokenPair, error) {
	now := time.Now().UTC()
	secret := []byte(s.cfg.JWT.AccessSecret) // same secret for both; type claim differentiates

	accessClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		Role:      role,
		TokenType: "access",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.RefreshTTL)),
		},
		TokenType: "refresh",
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// parseToken validates the token signature, algorithm, and expiry.
func (s *AuthService) parseToken(tokenString string) (*AppClaims, error) {
	secret := []byte(s.cfg.JWT.AccessSecret)
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ParseAccessToken is exported for use by the JWT middleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	return s.parseToken(tokenString)
}
