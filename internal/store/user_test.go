package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitrine-app/apiserver/types"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "username", "name", "price", "age", "phone", "location", "refresh_token",
	"is_public", "profile_photo", "banner_photo", "description", "reference_photos", "characteristics", "tags",
	"created_at", "updated_at",
}

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

func TestUserRepository_GetByUsername(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(userRowColumns).AddRow(
		"u-1", "a@b.com", "hash", "alice", "Alice", 80, 25, "+447911123456", "Centro", "",
		true, "photos/u-1/p.png", "", "hi", []byte(`["photos/u-1/r.png"]`), []byte(`{"eyes":"green"}`), []byte(`["blonde"]`),
		created, created,
	)
	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE username = \$1$`).
		WithArgs("alice").
		WillReturnRows(rows)

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, 80, user.Price)
	assert.Equal(t, []string{"photos/u-1/r.png"}, user.ReferencePhotos)
	assert.Equal(t, []string{"blonde"}, user.Tags)
	require.NotNil(t, user.Characteristics)
	assert.Equal(t, "green", user.Characteristics.Eyes)
	assert.Equal(t, created, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE id = \$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetByIDMalformedUUID(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE id = \$1$`).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: pqInvalidTextSyntax})

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetByRefreshTokenEmpty(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	_, err := repo.GetByRefreshToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT INTO users .+ VALUES .+NULLIF\(\$10, ''\)`).
		WithArgs(
			sqlmock.AnyArg(), "a@b.com", "hash", "alice", "", 0, 0, "", "", "",
			false, "", "", "", []byte("null"), []byte("null"), []byte("null"),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.Create(context.Background(), types.User{Email: "a@b.com", Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT INTO users`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), types.User{Email: "a@b.com", Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestUserRepository_CreateOtherError(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT INTO users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), types.User{Email: "a@b.com", Username: "alice"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateKey))
}

func TestUserRepository_UpdateMissingRow(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*UPDATE users\s+SET email = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.User{ID: "u-1", Email: "a@b.com", Username: "alice"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_SetRefreshToken(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`^UPDATE users SET refresh_token = NULLIF\(\$1, ''\), updated_at = \$2 WHERE id = \$3$`).
		WithArgs("tok", sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE users SET refresh_token`).
		WithArgs("", sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE users SET refresh_token`).
		WithArgs("", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetRefreshToken(context.Background(), "u-1", "tok"))
	require.NoError(t, repo.SetRefreshToken(context.Background(), "u-1", ""))
	assert.ErrorIs(t, repo.SetRefreshToken(context.Background(), "ghost", ""), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ListPublic(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u-1", "a@b.com", "h", "alice", "", 0, 0, "", "", "", true, "", "", "", nil, nil, nil, now, now).
		AddRow("u-2", "c@d.com", "h", "carol", "", 0, 0, "", "", "", true, "", "", "", nil, nil, nil, now, now)
	mock.ExpectQuery(`(?s)WHERE is_public = TRUE ORDER BY created_at, id OFFSET \$1 LIMIT \$2$`).
		WithArgs(10, 5).
		WillReturnRows(rows)

	users, err := repo.ListPublic(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "carol", users[1].Username)

	mock.ExpectQuery(`(?s)WHERE is_public = TRUE ORDER BY created_at, id OFFSET \$1$`).
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err = repo.ListPublic(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindPublicByLocation(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`(?s)WHERE is_public = TRUE AND location = \$1 ORDER BY created_at, id LIMIT \$2$`).
		WithArgs("Centro", defaultLocationResults).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err := repo.FindPublicByLocation(context.Background(), "Centro", 0)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
