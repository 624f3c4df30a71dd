// Package tokenmanager issues short-lived JWT access tokens and rotating refresh tokens.
package tokenmanager

import (
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
)

const (
	issuer = "escrow"

	defaultAlg        = "HS256"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

type Config struct {
	// HMAC key for access tokens. Required.
	SecretKey string

	// Optional, HS256 when empty
	Alg string

	// Optional, defaults above
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	key        []byte
	alg        jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	storage    repository.Storage
}

func New(cfg Config, storage repository.Storage) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	alg := cmp.Or(cfg.Alg, defaultAlg)
	method := jwt.GetSigningMethod(alg)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q", alg)
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        method,
		accessTTL:  cmp.Or(cfg.AccessTTL, defaultAccessTTL),
		refreshTTL: cmp.Or(cfg.RefreshTTL, defaultRefreshTTL),
		storage:    storage,
	}, nil
}

// GeneratePair signs an access token for the user and stores a fresh refresh token
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
	}
	access, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := rand.Text()
	err = m.storage.Refresh().Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// UseRefresh exchanges a refresh token: it is marked used even when already expired.
// Presenting a used token again revokes every live refresh token of its owner.
func (m *TokenManager) UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error) {
	var token models.RefreshToken

	err := m.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		token, err = tx.Refresh().Get(ctx, refresh)
		if err != nil {
			return err
		}
		if token.Replayed() {
			return apperrors.ErrRefreshTokenIsUsed
		}

		_, err = tx.Refresh().MarkUsed(ctx, refresh)
		return err
	})

	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
		if _, rerr := m.storage.Refresh().RevokeUserTokens(ctx, token.UserID); rerr != nil {
			return token, fmt.Errorf("revoke tokens of %s: %w", token.UserID, rerr)
		}
		return token, fmt.Errorf("use refresh token: %w", err)
	case err != nil:
		return token, fmt.Errorf("use refresh token: %w", err)
	case token.Expired(time.Now()):
		return token, fmt.Errorf("use refresh token: %w", apperrors.ErrRefreshTokenExpired)
	}

	return token, nil
}

// ParseAccess validates the access token and returns its subject
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(
		access,
		&claims,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse access token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse access token subject: %w", err)
	}
	return userID, nil
}
