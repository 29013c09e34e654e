package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vitrine-app/apiserver/config"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken is returned for any token that fails signature,
	// method, type or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is joined with ErrInvalidToken for expired tokens.
	ErrTokenExpired = errors.New("token expired")
)

// Identity is the part of a user that tokens are bound to.
type Identity struct {
	ID       string
	Username string
}

// Claims are the JWT claims carried by both token types.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Type     string `json:"typ"`
}

// UserID returns the subject the token was issued for.
func (c Claims) UserID() string {
	return c.Subject
}

// Issuer mints and verifies access and refresh tokens. It holds no state
// besides its secrets; persisting refresh tokens is the caller's job.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// NewIssuerFromConfig builds an Issuer from the JWT section of the config.
func NewIssuerFromConfig(cfg config.JWTConfig) *Issuer {
	return NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
}

// IssueAccessToken mints a short-lived token for id.
func (i *Issuer) IssueAccessToken(id Identity) (string, error) {
	return i.issue(id, tokenTypeAccess, i.accessSecret, i.accessTTL)
}

// IssueRefreshToken mints a long-lived token for id.
func (i *Issuer) IssueRefreshToken(id Identity) (string, error) {
	return i.issue(id, tokenTypeRefresh, i.refreshSecret, i.refreshTTL)
}

// DecodeAccessClaims verifies an access token and returns its claims.
func (i *Issuer) DecodeAccessClaims(tokenString string) (Claims, error) {
	return i.decode(tokenString, tokenTypeAccess, i.accessSecret)
}

// DecodeRefreshClaims verifies a refresh token and returns its claims.
func (i *Issuer) DecodeRefreshClaims(tokenString string) (Claims, error) {
	return i.decode(tokenString, tokenTypeRefresh, i.refreshSecret)
}

func (i *Issuer) issue(id Identity, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(id.ID) == "" {
		return "", errors.New("missing subject")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: id.Username,
		Type:     tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (i *Issuer) decode(tokenString, tokenType string, secret []byte) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != tokenType {
		return Claims{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
