package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vitrine-app/apiserver/internal/services"
	"github.com/vitrine-app/apiserver/types"
)

const maxJSONBytes = 1 << 20

// AuthHandler provides registration and session endpoints.
type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService) {
	handler := NewAuthHandler(users)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.With(RequireAuth(users)).Post("/logout", handler.Logout)
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the token in the request context.
func RequireAuth(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, types.KindAuthenticationFailed, "unauthorized")
				return
			}
			if _, err := users.AuthenticateAccess(token); err != nil {
				writeError(w, http.StatusUnauthorized, types.KindAuthenticationFailed, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccessToken(r.Context(), token)))
		})
	}
}

// Register creates an account and returns its first token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.Register(r.Context(), req), http.StatusCreated)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.Login(r.Context(), req), http.StatusOK)
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.RefreshAccessToken(r.Context(), req.RefreshToken), http.StatusOK)
}

// Logout clears the stored refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.Logout(r.Context(), req.RefreshToken), http.StatusOK)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
