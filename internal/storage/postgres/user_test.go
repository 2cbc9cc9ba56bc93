package postgres_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pcahill/chartroom/internal/storage/postgres"
	"github.com/pcahill/chartroom/internal/testutil"
)

func TestHashPassword(t *testing.T) {
	hash, err := postgres.HashPassword("secret123")
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret123", hash)
}

func TestCheckPassword_Correct(t *testing.T) {
	hash, err := postgres.HashPassword("mypassword")
	assert.NoError(t, err)
	assert.True(t, postgres.CheckPassword("mypassword", hash))
}

func TestCheckPassword_Wrong(t *testing.T) {
	hash, err := postgres.HashPassword("mypassword")
	assert.NoError(t, err)
	assert.False(t, postgres.CheckPassword("wrongpassword", hash))
}

// Property: HashPassword always produces a hash that CheckPassword verifies.
func TestPropertyHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// bcrypt has a max input length of 72 bytes
		password := rapid.StringMatching(`[a-zA-Z0-9!@#$%^&*]{1,64}`).Draw(t, "password")
		hash, err := postgres.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		if !postgres.CheckPassword(password, hash) {
			t.Fatalf("CheckPassword failed for password %q", password)
		}
	})
}

func TestUserRepository_CreateAndAuthenticate(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewUserRepository(pool)
	ctx := context.Background()

	u, err := repo.Create(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Len(t, u.ID, 6)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, postgres.AuthPassword, u.AuthType)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := repo.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

	_, err = repo.Authenticate(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, postgres.ErrUserNotFound)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "bob", "password-one")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "bob", "password-two")
	assert.ErrorIs(t, err, postgres.ErrUserExists)
}

func TestUserRepository_CreateGuest(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewUserRepository(pool)
	ctx := context.Background()

	u, err := repo.CreateGuest(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Username, "guest"))
	assert.Equal(t, postgres.AuthGuest, u.AuthType)

	// Guests have no password to authenticate with.
	_, err = repo.Authenticate(ctx, u.Username, "")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)
}

func TestUserRepository_GetByID(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewUserRepository(pool)
	ctx := context.Background()

	u, err := repo.Create(ctx, "carol", "long-enough")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", got.Username)

	_, err = repo.GetByID(ctx, "nosuch")
	assert.ErrorIs(t, err, postgres.ErrUserNotFound)
}
