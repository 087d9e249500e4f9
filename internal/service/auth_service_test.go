package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxport/vaxport-api/internal/models"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

type authRepoStub struct {
	revokedUser string
	revokeErr   error
	auditLogs   []models.AuditLog
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, errors.New("not implemented")
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	return nil, errors.New("not implemented")
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return nil, errors.New("not implemented")
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revokedUser = userID
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditLogs = append(s.auditLogs, *log)
	return nil
}

func TestLogoutRevokesRefreshTokens(t *testing.T) {
	repo := &authRepoStub{}
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret"})

	err := svc.Logout(context.Background(), "u-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", repo.revokedUser)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogout, repo.auditLogs[0].Action)
	assert.Equal(t, "u-1", repo.auditLogs[0].UserID)
	assert.Equal(t, "10.0.0.1", repo.auditLogs[0].IPAddress)
}

func TestLogoutRepositoryFailure(t *testing.T) {
	repo := &authRepoStub{revokeErr: errors.New("connection reset")}
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret"})

	err := svc.Logout(context.Background(), "u-1", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, repo.auditLogs)
}
