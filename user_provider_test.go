package content_test

import (
	"context"
	"testing"
	"time"

	content "github.com/goliatone/go-content"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTracker struct {
	user      *content.User
	attempts  int
	successes int
}

func (s *stubTracker) GetByEmail(_ context.Context, email string) (*content.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, repository.NewRecordNotFound()
	}
	copied := *s.user
	return &copied, nil
}

func (s *stubTracker) TrackAttemptedLogin(_ context.Context, user *content.User) error {
	s.attempts++
	s.user.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	s.user.LoginAttemptAt = &now
	return nil
}

func (s *stubTracker) TrackSuccessfulLogin(_ context.Context, _ *content.User) error {
	s.successes++
	s.user.LoginAttempts = 0
	s.user.LoginAttemptAt = nil
	return nil
}

func newStubTracker(t *testing.T, password string) *stubTracker {
	t.Helper()

	hash, err := content.HashPassword(password)
	require.NoError(t, err)

	return &stubTracker{
		user: &content.User{
			ID:           uuid.New(),
			Email:        "user@example.com",
			Role:         content.RoleUser,
			PasswordHash: hash,
		},
	}
}

func TestUserProvider_VerifyIdentity(t *testing.T) {
	t.Run("correct credentials verify and reset the counter", func(t *testing.T) {
		tracker := newStubTracker(t, "sup3r-secret")
		provider := content.NewUserProvider(tracker)

		user, err := provider.VerifyIdentity(context.Background(), "user@example.com", "sup3r-secret")
		require.NoError(t, err)
		assert.Equal(t, tracker.user.ID, user.ID)
		assert.Equal(t, 1, tracker.successes)
	})

	t.Run("unknown account and wrong password are indistinguishable", func(t *testing.T) {
		tracker := newStubTracker(t, "sup3r-secret")
		provider := content.NewUserProvider(tracker)

		_, errUnknown := provider.VerifyIdentity(context.Background(), "nobody@example.com", "whatever")
		_, errWrong := provider.VerifyIdentity(context.Background(), "user@example.com", "wrong")

		assert.ErrorIs(t, errUnknown, content.ErrInvalidCredentials)
		assert.ErrorIs(t, errWrong, content.ErrInvalidCredentials)
	})

	t.Run("failed attempts are tracked", func(t *testing.T) {
		tracker := newStubTracker(t, "sup3r-secret")
		provider := content.NewUserProvider(tracker)

		for i := 0; i < 3; i++ {
			_, err := provider.VerifyIdentity(context.Background(), "user@example.com", "wrong")
			assert.ErrorIs(t, err, content.ErrInvalidCredentials)
		}

		assert.Equal(t, 3, tracker.attempts)
	})

	t.Run("throttles after the attempt budget is spent", func(t *testing.T) {
		tracker := newStubTracker(t, "sup3r-secret")
		provider := content.NewUserProvider(tracker)

		for i := 0; i < content.MaxLoginAttempts; i++ {
			_, err := provider.VerifyIdentity(context.Background(), "user@example.com", "wrong")
			assert.ErrorIs(t, err, content.ErrInvalidCredentials)
		}

		// even the right password is refused while throttled
		_, err := provider.VerifyIdentity(context.Background(), "user@example.com", "sup3r-secret")
		assert.ErrorIs(t, err, content.ErrTooManyLoginAttempts)
	})

	t.Run("cool down window expires the counter", func(t *testing.T) {
		tracker := newStubTracker(t, "sup3r-secret")
		provider := content.NewUserProvider(tracker)

		stale := time.Now().Add(-25 * time.Hour)
		tracker.user.LoginAttempts = content.MaxLoginAttempts + 2
		tracker.user.LoginAttemptAt = &stale

		user, err := provider.VerifyIdentity(context.Background(), "user@example.com", "sup3r-secret")
		require.NoError(t, err)
		assert.NotNil(t, user)
	})
}
