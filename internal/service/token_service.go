package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

const tokenSecretBytes = 32

type tokenRepository interface {
	Insert(ctx context.Context, token *models.ScanToken) error
	FindByRoundAndHash(ctx context.Context, roundID, secretHash string) (*models.ScanToken, error)
	Consume(ctx context.Context, tokenID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenService manages the rotating single-use scan tokens.
type TokenService struct {
	repo          tokenRepository
	ttl           time.Duration
	sweepInterval time.Duration
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewTokenService constructs the token lifecycle manager.
func NewTokenService(repo tokenRepository, ttl, sweepInterval time.Duration, metrics *MetricsService, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		repo:          repo,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates a fresh single-use token for a round. Only the SHA-256
// digest of the secret is stored; the raw secret goes into the QR payload.
func (s *TokenService) Issue(ctx context.Context, roundID string) (*models.IssuedToken, error) {
	secret := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token secret")
	}
	rawSecret := hex.EncodeToString(secret)

	token := &models.ScanToken{
		RoundID:    roundID,
		SecretHash: hashSecret(rawSecret),
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if err := s.repo.Insert(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue token")
	}
	s.metrics.RecordTokenRotation()

	return &models.IssuedToken{
		ID:        token.ID,
		RoundID:   roundID,
		RawSecret: rawSecret,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Consume validates and atomically consumes a token. The initial read only
// produces friendly errors; the conditional update is what actually prevents
// replay, so losing that race fails with TokenAlreadyConsumed even when the
// read looked valid.
func (s *TokenService) Consume(ctx context.Context, roundID, rawSecret string) (*models.ScanToken, error) {
	token, err := s.repo.FindByRoundAndHash(ctx, roundID, hashSecret(rawSecret))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up token")
	}

	now := s.now()
	if token.Consumed {
		return nil, appErrors.ErrTokenAlreadyConsumed
	}
	if !token.ExpiresAt.After(now) {
		return nil, appErrors.ErrTokenExpired
	}

	consumed, err := s.repo.Consume(ctx, token.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume token")
	}
	if !consumed {
		s.metrics.RecordTokenRace()
		return nil, appErrors.ErrTokenAlreadyConsumed
	}

	token.Consumed = true
	token.ConsumedAt = &now
	return token, nil
}

// StartSweeper runs periodic deletion of expired tokens until ctx is done.
// Housekeeping only; correctness never depends on it.
func (s *TokenService) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.repo.DeleteExpired(ctx, s.now())
				if err != nil {
					s.logger.Warn("token sweep failed", zap.Error(err))
					continue
				}
				s.metrics.RecordSweptTokens(deleted)
				if deleted > 0 {
					s.logger.Debug("token sweep completed", zap.Int64("deleted", deleted))
				}
			}
		}
	}()
}

func hashSecret(rawSecret string) string {
	sum := sha256.Sum256([]byte(rawSecret))
	return hex.EncodeToString(sum[:])
}
