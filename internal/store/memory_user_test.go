package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitrine-app/apiserver/types"
)

func TestMemoryUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Email: "a@b.com", Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	byEmail, err := repo.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byUsername, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	_, err = repo.GetByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_Duplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	first, err := repo.Create(ctx, types.User{Email: "a@b.com", Username: "alice"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{Email: "a@b.com", Username: "other"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	_, err = repo.Create(ctx, types.User{Email: "x@y.com", Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	second, err := repo.Create(ctx, types.User{Email: "c@d.com", Username: "carol"})
	require.NoError(t, err)
	second.Username = first.Username
	_, err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMemoryUserRepository_RefreshToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user, err := repo.Create(ctx, types.User{Email: "a@b.com", Username: "alice"})
	require.NoError(t, err)

	require.NoError(t, repo.SetRefreshToken(ctx, user.ID, "tok"))
	found, err := repo.GetByRefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.SetRefreshToken(ctx, user.ID, ""))
	_, err = repo.GetByRefreshToken(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByRefreshToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.SetRefreshToken(ctx, "ghost", "tok"), ErrNotFound)
}

func TestMemoryUserRepository_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user, err := repo.Create(ctx, types.User{Email: "a@b.com", Username: "alice"})
	require.NoError(t, err)

	user.Name = "Alice"
	user.CreatedAt = user.CreatedAt.AddDate(-1, 0, 0)
	updated, err := repo.Update(ctx, user)
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, updated.CreatedAt, stored.CreatedAt)
	assert.NotEqual(t, user.CreatedAt, stored.CreatedAt)

	_, err = repo.Update(ctx, types.User{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user, err := repo.Create(ctx, types.User{Email: "a@b.com", Username: "alice", Tags: []string{"blonde"}})
	require.NoError(t, err)
	user.Tags[0] = "mutated"

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"blonde"}, stored.Tags)
}

func TestMemoryUserRepository_ListPublic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, types.User{
			Email:    fmt.Sprintf("u%d@b.com", i),
			Username: fmt.Sprintf("u%d", i),
			IsPublic: i != 2,
			Location: "Centro",
		})
		require.NoError(t, err)
	}

	all, err := repo.ListPublic(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"u0", "u1", "u3", "u4"}, usernames(all))

	page, err := repo.ListPublic(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, usernames(page))

	past, err := repo.ListPublic(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, past)

	found, err := repo.FindPublicByLocation(ctx, "Centro", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u1", "u3"}, usernames(found))

	none, err := repo.FindPublicByLocation(ctx, "Norte", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func usernames(users []types.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}
