package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitrine-app/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It backs local runs
// and tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
	seq   map[string]int
	next  int
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]types.User),
		seq:   make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, exists := r.users[user.ID]; exists {
		return types.User{}, ErrDuplicateKey
	}
	if r.conflicts(user) {
		return types.User{}, ErrDuplicateKey
	}

	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	r.seq[user.ID] = r.next
	r.next++
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) GetByRefreshToken(_ context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrNotFound
	}
	return r.find(func(u types.User) bool { return u.RefreshToken == token })
}

func (r *MemoryUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if r.conflicts(user) {
		return types.User{}, ErrDuplicateKey
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.now()
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.RefreshToken = token
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) ListPublic(_ context.Context, offset, limit int) ([]types.User, error) {
	public := r.filterOrdered(func(u types.User) bool { return u.IsPublic })
	if offset < 0 {
		offset = 0
	}
	if offset >= len(public) {
		return []types.User{}, nil
	}
	public = public[offset:]
	if limit > 0 && limit < len(public) {
		public = public[:limit]
	}
	return public, nil
}

func (r *MemoryUserRepository) FindPublicByLocation(_ context.Context, location string, limit int) ([]types.User, error) {
	if limit < 1 {
		limit = defaultLocationResults
	}
	matches := r.filterOrdered(func(u types.User) bool { return u.IsPublic && u.Location == location })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *MemoryUserRepository) find(match func(types.User) bool) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			return cloneUser(user), nil
		}
	}
	return types.User{}, ErrNotFound
}

// filterOrdered returns matching users in insertion order.
func (r *MemoryUserRepository) filterOrdered(match func(types.User) bool) []types.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.User, 0)
	for _, user := range r.users {
		if match(user) {
			users = append(users, cloneUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return r.seq[users[i].ID] < r.seq[users[j].ID]
	})
	return users
}

// conflicts reports whether another user already holds user's email or
// username. Callers hold the write lock.
func (r *MemoryUserRepository) conflicts(user types.User) bool {
	for id, other := range r.users {
		if id == user.ID {
			continue
		}
		if other.Email == user.Email || other.Username == user.Username {
			return true
		}
	}
	return false
}

func cloneUser(user types.User) types.User {
	if user.ReferencePhotos != nil {
		user.ReferencePhotos = append([]string(nil), user.ReferencePhotos...)
	}
	if user.Tags != nil {
		user.Tags = append([]string(nil), user.Tags...)
	}
	if user.Characteristics != nil {
		c := *user.Characteristics
		user.Characteristics = &c
	}
	return user
}
