package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vitrine-app/apiserver/types"
)

const (
	pqUniqueViolation      = "23505"
	pqInvalidTextSyntax    = "22P02"
	userSelectColumns      = `id, email, password_hash, username, name, price, age, phone, location, COALESCE(refresh_token, ''), is_public, profile_photo, banner_photo, description, reference_photos, characteristics, tags, created_at, updated_at`
	defaultLocationResults = 20
)

// UserRepository handles persistence for users in Postgres.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var referencesJSON, characteristicsJSON, tagsJSON []byte
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Username,
		&user.Name,
		&user.Price,
		&user.Age,
		&user.Phone,
		&user.Location,
		&user.RefreshToken,
		&user.IsPublic,
		&user.ProfilePhoto,
		&user.BannerPhoto,
		&user.Description,
		&referencesJSON,
		&characteristicsJSON,
		&tagsJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}

	_ = json.Unmarshal(referencesJSON, &user.ReferencePhotos)
	_ = json.Unmarshal(characteristicsJSON, &user.Characteristics)
	_ = json.Unmarshal(tagsJSON, &user.Tags)
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, column, value string) (types.User, error) {
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE ` + column + ` = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, "username", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getOne(ctx, "email", email)
}

func (r *UserRepository) GetByRefreshToken(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrNotFound
	}
	return r.getOne(ctx, "refresh_token", token)
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	referencesJSON, characteristicsJSON, tagsJSON, err := marshalUserJSON(user)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (id, email, password_hash, username, name, price, age, phone, location, refresh_token,
			is_public, profile_photo, banner_photo, description, reference_photos, characteristics, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Username,
		user.Name,
		user.Price,
		user.Age,
		user.Phone,
		user.Location,
		user.RefreshToken,
		user.IsPublic,
		user.ProfilePhoto,
		user.BannerPhoto,
		user.Description,
		referencesJSON,
		characteristicsJSON,
		tagsJSON,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	referencesJSON, characteristicsJSON, tagsJSON, err := marshalUserJSON(user)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		UPDATE users
		SET email = $1,
			password_hash = $2,
			username = $3,
			name = $4,
			price = $5,
			age = $6,
			phone = $7,
			location = $8,
			refresh_token = NULLIF($9, ''),
			is_public = $10,
			profile_photo = $11,
			banner_photo = $12,
			description = $13,
			reference_photos = $14,
			characteristics = $15,
			tags = $16,
			updated_at = $17
		WHERE id = $18`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.Username,
		user.Name,
		user.Price,
		user.Age,
		user.Phone,
		user.Location,
		user.RefreshToken,
		user.IsPublic,
		user.ProfilePhoto,
		user.BannerPhoto,
		user.Description,
		referencesJSON,
		characteristicsJSON,
		tagsJSON,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// SetRefreshToken stores token on the user; an empty token clears it.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET refresh_token = NULLIF($1, ''), updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, token, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

// ListPublic returns public users in creation order. A non-positive limit
// returns every public user from offset on.
func (r *UserRepository) ListPublic(ctx context.Context, offset, limit int) ([]types.User, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE is_public = TRUE ORDER BY created_at, id OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryUsers(ctx, query, args...)
}

// FindPublicByLocation returns at most limit public users in location.
func (r *UserRepository) FindPublicByLocation(ctx context.Context, location string, limit int) ([]types.User, error) {
	if limit < 1 {
		limit = defaultLocationResults
	}
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE is_public = TRUE AND location = $1 ORDER BY created_at, id LIMIT $2`
	return r.queryUsers(ctx, query, location, limit)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func marshalUserJSON(user types.User) (references, characteristics, tags []byte, err error) {
	if references, err = json.Marshal(user.ReferencePhotos); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal reference photos: %w", err)
	}
	if characteristics, err = json.Marshal(user.Characteristics); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal characteristics: %w", err)
	}
	if tags, err = json.Marshal(user.Tags); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	return references, characteristics, tags, nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
		case pqInvalidTextSyntax:
			return ErrNotFound
		}
	}
	return err
}
