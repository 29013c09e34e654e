package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitrine-app/apiserver/internal/auth"
	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/internal/store"
	"github.com/vitrine-app/apiserver/internal/validation"
	"github.com/vitrine-app/apiserver/types"
	"go.uber.org/zap"
)

const (
	// MaxPageSize caps the page size of ListPublic.
	MaxPageSize = 100
	// LocationSearchLimit caps SearchByLocation results.
	LocationSearchLimit = 20

	msgUserUpdated       = "User updated"
	msgRefreshTokenReset = "The refresh token has been removed!"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByRefreshToken(ctx context.Context, token string) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	ListPublic(ctx context.Context, offset, limit int) ([]types.User, error)
	FindPublicByLocation(ctx context.Context, location string, limit int) ([]types.User, error)
}

// TokenIssuer mints and verifies access and refresh tokens.
type TokenIssuer interface {
	IssueAccessToken(id auth.Identity) (string, error)
	IssueRefreshToken(id auth.Identity) (string, error)
	DecodeAccessClaims(token string) (auth.Claims, error)
	DecodeRefreshClaims(token string) (auth.Claims, error)
}

// EventPublisher receives account events after state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event types.AccountEvent) error
}

// PhotoSaver stores uploaded photos for a user.
type PhotoSaver interface {
	Save(ctx context.Context, userID string, upload storage.Upload) (string, error)
	Remove(ctx context.Context, keys ...string) error
}

// PhotoFiles are the photos received with a profile update, keyed by the
// form field they arrived in.
type PhotoFiles struct {
	Profile    *storage.Upload
	Banner     *storage.Upload
	References []storage.Upload
}

// Empty reports whether no photo was received.
func (p PhotoFiles) Empty() bool {
	return p.Profile == nil && p.Banner == nil && len(p.References) == 0
}

// UserService encapsulates account use-cases. Every exported operation
// returns a Result and never a bare error.
type UserService struct {
	repo         UserRepository
	tokens       TokenIssuer
	photos       PhotoSaver
	events       EventPublisher
	logger       *zap.Logger
	tagWhitelist []string
	now          func() time.Time
}

// UserServiceOption configures optional collaborators.
type UserServiceOption func(*UserService)

// WithPhotos enables photo uploads on UpdateProfile.
func WithPhotos(photos PhotoSaver) UserServiceOption {
	return func(s *UserService) { s.photos = photos }
}

// WithEvents publishes account events after state changes.
func WithEvents(events EventPublisher) UserServiceOption {
	return func(s *UserService) { s.events = events }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) UserServiceOption {
	return func(s *UserService) { s.logger = logger }
}

func NewUserService(repo UserRepository, tokens TokenIssuer, tagWhitelist []string, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:         repo,
		tokens:       tokens,
		logger:       zap.NewNop(),
		tagWhitelist: tagWhitelist,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and opens its first session.
func (s *UserService) Register(ctx context.Context, req types.CreateUserRequest) types.Result[types.TokenPair] {
	return run(s, "register", func() (types.TokenPair, error) {
		req.Email = strings.TrimSpace(req.Email)
		req.Username = strings.TrimSpace(req.Username)
		if err := validation.ValidateCreate(req); err != nil {
			return types.TokenPair{}, err
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return types.TokenPair{}, err
		}

		user, err := s.repo.Create(ctx, types.User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: hash,
		})
		if err != nil {
			return types.TokenPair{}, fmt.Errorf("create user: %w", err)
		}

		pair, err := s.openSession(ctx, &user)
		if err != nil {
			return types.TokenPair{}, err
		}
		s.publish(ctx, types.EventRegistered, user)
		return pair, nil
	})
}

// Login checks credentials and replaces any previous session.
func (s *UserService) Login(ctx context.Context, req types.LoginRequest) types.Result[types.TokenPair] {
	return run(s, "login", func() (types.TokenPair, error) {
		user, err := s.findByCredentials(ctx, req)
		if err != nil {
			return types.TokenPair{}, err
		}

		pair, err := s.openSession(ctx, &user)
		if err != nil {
			return types.TokenPair{}, err
		}
		s.publish(ctx, types.EventLoggedIn, user)
		return pair, nil
	})
}

// RefreshAccessToken issues a new access token for a refresh token that
// verifies and is still the one stored on its user. The refresh token is
// returned unchanged.
func (s *UserService) RefreshAccessToken(ctx context.Context, refreshToken string) types.Result[types.TokenPair] {
	return run(s, "refresh", func() (types.TokenPair, error) {
		claims, err := s.tokens.DecodeRefreshClaims(refreshToken)
		if err != nil {
			return types.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
		}

		user, err := s.repo.GetByID(ctx, claims.UserID())
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, ErrInvalidRefreshToken
		}
		if err != nil {
			return types.TokenPair{}, err
		}
		if !user.HoldsRefreshToken(refreshToken) {
			return types.TokenPair{}, ErrInvalidRefreshToken
		}

		access, err := s.tokens.IssueAccessToken(user.Identity())
		if err != nil {
			return types.TokenPair{}, fmt.Errorf("issue access token: %w", err)
		}
		return types.TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
	})
}

// Logout clears the stored refresh token of the user holding it.
func (s *UserService) Logout(ctx context.Context, refreshToken string) types.Result[types.Message] {
	return run(s, "logout", func() (types.Message, error) {
		user, err := s.repo.GetByRefreshToken(ctx, refreshToken)
		if err != nil {
			return types.Message{}, err
		}

		user.EndSession()
		if err := s.repo.SetRefreshToken(ctx, user.ID, user.RefreshToken); err != nil {
			return types.Message{}, fmt.Errorf("clear refresh token: %w", err)
		}
		s.publish(ctx, types.EventLoggedOut, user)
		return types.Message{Message: msgRefreshTokenReset}, nil
	})
}

// GetProfile returns the full record of the access token's owner.
func (s *UserService) GetProfile(ctx context.Context, accessToken string) types.Result[types.User] {
	return run(s, "get_profile", func() (types.User, error) {
		return s.userFromAccess(ctx, accessToken)
	})
}

// GetPublicProfile returns the public projection of username.
func (s *UserService) GetPublicProfile(ctx context.Context, username string) types.Result[types.PublicProfile] {
	return run(s, "get_public_profile", func() (types.PublicProfile, error) {
		user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			return types.PublicProfile{}, err
		}
		return user.Public(), nil
	})
}

// UpdateProfile validates req, merges it into the caller's record, stores
// any photos and persists the result.
func (s *UserService) UpdateProfile(ctx context.Context, accessToken string, req types.UpdateUserRequest, files PhotoFiles) types.Result[types.Message] {
	return run(s, "update_profile", func() (types.Message, error) {
		user, err := s.userFromAccess(ctx, accessToken)
		if err != nil {
			return types.Message{}, err
		}
		if err := validation.ValidateUpdate(req, s.tagWhitelist); err != nil {
			return types.Message{}, err
		}
		if err := mergeUpdate(&user, req); err != nil {
			return types.Message{}, err
		}

		uploads, err := s.storePhotos(ctx, user.ID, files)
		if err != nil {
			return types.Message{}, err
		}
		user.ApplyPhotos(uploads)

		if _, err := s.repo.Update(ctx, user); err != nil {
			s.discardPhotos(uploads)
			return types.Message{}, fmt.Errorf("update user: %w", err)
		}
		s.publish(ctx, types.EventProfileUpdated, user)
		return types.Message{Message: msgUserUpdated}, nil
	})
}

// ListPublic returns one page of public profiles. When page or limit is
// missing every public profile is returned.
func (s *UserService) ListPublic(ctx context.Context, page, limit int) types.Result[[]types.PublicProfile] {
	return run(s, "list_public", func() ([]types.PublicProfile, error) {
		offset := 0
		if page > 0 && limit > 0 {
			if limit > MaxPageSize {
				limit = MaxPageSize
			}
			offset = (page - 1) * limit
		} else {
			limit = 0
		}

		users, err := s.repo.ListPublic(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		return types.PublicProfiles(users), nil
	})
}

// SearchByLocation returns up to LocationSearchLimit public profiles in
// location.
func (s *UserService) SearchByLocation(ctx context.Context, location string) types.Result[[]types.PublicProfile] {
	return run(s, "search_by_location", func() ([]types.PublicProfile, error) {
		location = strings.TrimSpace(location)
		if location == "" {
			return []types.PublicProfile{}, nil
		}

		users, err := s.repo.FindPublicByLocation(ctx, location, LocationSearchLimit)
		if err != nil {
			return nil, err
		}
		return types.PublicProfiles(users), nil
	})
}

// AuthenticateAccess verifies an access token and returns its identity.
func (s *UserService) AuthenticateAccess(accessToken string) (auth.Identity, error) {
	claims, err := s.tokens.DecodeAccessClaims(accessToken)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return auth.Identity{ID: claims.UserID(), Username: claims.Username}, nil
}

func (s *UserService) findByCredentials(ctx context.Context, req types.LoginRequest) (types.User, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)

	var (
		user types.User
		err  error
	)
	switch {
	case email != "":
		user, err = s.repo.GetByEmail(ctx, email)
	case username != "":
		user, err = s.repo.GetByUsername(ctx, username)
	default:
		return types.User{}, ErrAuthenticationFailed
	}
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrAuthenticationFailed
	}
	if err != nil {
		return types.User{}, err
	}
	if !user.PasswordMatches(req.Password) {
		return types.User{}, ErrAuthenticationFailed
	}
	return user, nil
}

// openSession issues a token pair and persists the refresh half.
func (s *UserService) openSession(ctx context.Context, user *types.User) (types.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.Identity())
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	if err := user.RefreshSession(s.tokens); err != nil {
		return types.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.repo.SetRefreshToken(ctx, user.ID, user.RefreshToken); err != nil {
		return types.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return types.TokenPair{AccessToken: access, RefreshToken: user.RefreshToken}, nil
}

func (s *UserService) userFromAccess(ctx context.Context, accessToken string) (types.User, error) {
	identity, err := s.AuthenticateAccess(accessToken)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, identity.ID)
}

func (s *UserService) storePhotos(ctx context.Context, userID string, files PhotoFiles) (types.PhotoUploads, error) {
	var uploads types.PhotoUploads
	if files.Empty() {
		return uploads, nil
	}
	if s.photos == nil {
		return uploads, errors.New("photo storage is not configured")
	}

	save := func(upload storage.Upload) (string, error) {
		key, err := s.photos.Save(ctx, userID, upload)
		if err != nil {
			s.discardPhotos(uploads)
			return "", err
		}
		return key, nil
	}

	var err error
	if files.Profile != nil {
		if uploads.Profile, err = save(*files.Profile); err != nil {
			return types.PhotoUploads{}, err
		}
	}
	if files.Banner != nil {
		if uploads.Banner, err = save(*files.Banner); err != nil {
			return types.PhotoUploads{}, err
		}
	}
	for _, ref := range files.References {
		key, err := save(ref)
		if err != nil {
			return types.PhotoUploads{}, err
		}
		uploads.References = append(uploads.References, key)
	}
	return uploads, nil
}

// discardPhotos removes photos stored for an update that did not persist.
func (s *UserService) discardPhotos(uploads types.PhotoUploads) {
	if s.photos == nil || uploads.Empty() {
		return
	}
	keys := append([]string{uploads.Profile, uploads.Banner}, uploads.References...)
	if err := s.photos.Remove(context.Background(), keys...); err != nil {
		s.logger.Warn("discard photos", zap.Error(err))
	}
}

func (s *UserService) publish(ctx context.Context, eventType string, user types.User) {
	if s.events == nil {
		return
	}
	event := types.AccountEvent{
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: s.now().Unix(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish account event",
			zap.String("type", eventType),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

// mergeUpdate copies supplied fields onto user. req has already passed the
// update rules.
func mergeUpdate(user *types.User, req types.UpdateUserRequest) error {
	age, err := validation.ParseAge(*req.Age)
	if err != nil {
		return err
	}
	price, err := validation.ParsePrice(*req.Price)
	if err != nil {
		return err
	}

	user.Age = age
	user.Price = price
	user.Phone = strings.TrimSpace(*req.Phone)
	user.Location = *req.Location
	user.Tags = append([]string{}, req.Tags...)
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Description != nil {
		user.Description = *req.Description
	}
	if req.IsPublic != nil {
		user.IsPublic = *req.IsPublic
	}
	if req.Characteristics != nil {
		c := *req.Characteristics
		user.Characteristics = &c
	}
	return nil
}
