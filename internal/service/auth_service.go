package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to create a participant
// account. The wallet address and jurisdiction seed the investor record.
type RegisterRequest struct {
	Email         string `json:"email"          binding:"required,email"`
	Password      string `json:"password"       binding:"required,min=8"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	Jurisdiction  string `json:"jurisdiction"   binding:"required,len=2"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	User         *domain.User     `json:"user"`
	Investor     *domain.Investor `json:"investor"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
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

// AuthService handles registration, login, and JWT token operations.
type AuthService struct {
	db           *sqlx.DB
	userRepo     *repository.UserRepository
	investorRepo *repository.InvestorRepository
	cfg          *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	investorRepo *repository.InvestorRepository,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:           db,
		userRepo:     userRepo,
		investorRepo: investorRepo,
		cfg:          cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register
// ──────────────────────────────────────────────────────────────────────────────

// Register creates a participant account and its investor record in a
// single atomic transaction. The investor starts unverified; a KYC
// verification round-trip follows registration.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: hash: %w", err)
	}

	now := time.Now().UTC()
	investorID := uuid.New()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleParticipant,
		InvestorID:   &investorID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	investor := &domain.Investor{
		ID:            investorID,
		WalletAddress: req.WalletAddress,
		Jurisdiction:  req.Jurisdiction,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return nil, fmt.Errorf("auth_service.Register: begin tx: %w", txErr)
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	if txErr = s.insertInvestorTx(ctx, tx, investor); txErr != nil {
		return nil, txErr
	}
	if txErr = s.insertUserTx(ctx, tx, user); txErr != nil {
		return nil, txErr
	}
	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("auth_service.Register: commit: %w", txErr)
	}

	pair, err := s.generateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: tokens: %w", err)
	}

	return &RegisterResponse{
		User:         user,
		Investor:     investor,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// insertUserTx inserts a user row within an existing transaction.
func (s *AuthService) insertUserTx(ctx context.Context, tx *sqlx.Tx, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, investor_id, is_active, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :role, :investor_id, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, u); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("auth_service.insertUserTx: %w", err)
	}
	return nil
}

// insertInvestorTx inserts the investor row within an existing transaction.
func (s *AuthService) insertInvestorTx(ctx context.Context, tx *sqlx.Tx, inv *domain.Investor) error {
	query := `
		INSERT INTO investors
			(id, wallet_address, jurisdiction, verified, accredited, is_qib, sanctioned,
			 custodial_account, verified_at, created_at, updated_at)
		VALUES
			(:id, :wallet_address, :jurisdiction, :verified, :accredited, :is_qib, :sanctioned,
			 :custodial_account, :verified_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("auth_service.insertInvestorTx: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login validates credentials and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Map not-found to a generic credential error to prevent user enumeration.
		return nil, domain.ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	pair, err := s.generateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: tokens: %w", err)
	}

	return &LoginResponse{
		User:         user,
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

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", domain.ErrUserNotFound
	}
	if !user.IsActive {
		return "", "", domain.ErrUserInactive
	}

	pair, err := s.generateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return "", "", fmt.Errorf("auth_service.RefreshToken: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair creates a signed access token (AccessTTL) and a signed
// refresh token (RefreshTTL) for the given user.
func (s *AuthService) generateTokenPair(userID uuid.UUID, role string) (TokenPair, error) {
	now := time.Now().UTC()
	secret := []byte(s.cfg.JWT.AccessSecret) // same secret for both; type claim differentiates

	accessClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
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
			Subject:   userID.String(),
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
