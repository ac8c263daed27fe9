package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type mockTokenRepo struct {
	tokens       map[string]*models.ScanToken
	consumeOK    bool
	consumeCalls int
}

func (m *mockTokenRepo) Insert(ctx context.Context, token *models.ScanToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]*models.ScanToken)
	}
	if token.ID == "" {
		token.ID = "tok-1"
	}
	m.tokens[token.RoundID+":"+token.SecretHash] = token
	return nil
}

func (m *mockTokenRepo) FindByRoundAndHash(ctx context.Context, roundID, secretHash string) (*models.ScanToken, error) {
	if token, ok := m.tokens[roundID+":"+secretHash]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTokenRepo) Consume(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	m.consumeCalls++
	return m.consumeOK, nil
}

func (m *mockTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func TestTokenServiceIssueStoresDigestNotSecret(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: true}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	issued, err := svc.Issue(context.Background(), "round-1")
	require.NoError(t, err)
	require.NotEmpty(t, issued.RawSecret)

	stored, ok := repo.tokens["round-1:"+hashSecret(issued.RawSecret)]
	require.True(t, ok)
	assert.NotEqual(t, issued.RawSecret, stored.SecretHash)
	assert.WithinDuration(t, time.Now().Add(15*time.Second), issued.ExpiresAt, 2*time.Second)
}

func TestTokenServiceConsumeRoundTrip(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: true}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	issued, err := svc.Issue(context.Background(), "round-1")
	require.NoError(t, err)

	token, err := svc.Consume(context.Background(), "round-1", issued.RawSecret)
	require.NoError(t, err)
	assert.True(t, token.Consumed)
	assert.Equal(t, 1, repo.consumeCalls)
}

func TestTokenServiceConsumeUnknownSecret(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: true}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	_, err := svc.Consume(context.Background(), "round-1", "bogus")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
	assert.Equal(t, 0, repo.consumeCalls)
}

func TestTokenServiceConsumeExpired(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: true}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	issued, err := svc.Issue(context.Background(), "round-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(20 * time.Second) }
	_, err = svc.Consume(context.Background(), "round-1", issued.RawSecret)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))
	assert.Equal(t, 0, repo.consumeCalls)
}

func TestTokenServiceConsumeLosesRace(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: false}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	issued, err := svc.Issue(context.Background(), "round-1")
	require.NoError(t, err)

	_, err = svc.Consume(context.Background(), "round-1", issued.RawSecret)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenAlreadyConsumed))
	assert.Equal(t, 1, repo.consumeCalls)
}

func TestTokenServiceConsumeAlreadyConsumedRead(t *testing.T) {
	repo := &mockTokenRepo{consumeOK: true}
	svc := NewTokenService(repo, 15*time.Second, time.Minute, nil, zap.NewNop())

	issued, err := svc.Issue(context.Background(), "round-1")
	require.NoError(t, err)

	stored := repo.tokens["round-1:"+hashSecret(issued.RawSecret)]
	stored.Consumed = true

	_, err = svc.Consume(context.Background(), "round-1", issued.RawSecret)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenAlreadyConsumed))
	assert.Equal(t, 0, repo.consumeCalls)
}
