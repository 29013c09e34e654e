package types

// CreateUserRequest is the registration payload.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest identifies a user by email or username plus password.
// Email wins when both are set.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateUserRequest is a partial profile update. Nil pointers and nil
// slices mean "not supplied". Numeric fields arrive as text and are
// checked by the update rules before conversion.
type UpdateUserRequest struct {
	Name            *string          `json:"name,omitempty"`
	Price           *string          `json:"price,omitempty"`
	Age             *string          `json:"age,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	Location        *string          `json:"location,omitempty"`
	IsPublic        *bool            `json:"is_public,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Characteristics *Characteristics `json:"characteristics,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
}

// TokenPair is returned by registration, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Message is a confirmation payload.
type Message struct {
	Message string `json:"message"`
}

// AccountEvent is published after state-changing account operations.
type AccountEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	Username   string `json:"username,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
}

const (
	EventRegistered     = "account.registered"
	EventLoggedIn       = "account.logged_in"
	EventLoggedOut      = "account.logged_out"
	EventProfileUpdated = "account.profile_updated"
)
