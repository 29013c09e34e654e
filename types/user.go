package types

import (
	"crypto/subtle"
	"time"

	"github.com/vitrine-app/apiserver/internal/auth"
)

// User represents an account together with its public listing profile.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"id" bson:"_id" db:"id"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" bson:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password" db:"password_hash"`

	// Username is the unique public handle of the user.
	Username string `json:"username" bson:"username" db:"username"`

	// Name is the display name shown on the profile.
	Name string `json:"name,omitempty" bson:"name,omitempty" db:"name"`

	// Price is the advertised rate in whole currency units.
	Price int `json:"price,omitempty" bson:"price,omitempty" db:"price"`

	// Age is the user's age in years.
	Age int `json:"age,omitempty" bson:"age,omitempty" db:"age"`

	// Phone is the mobile contact number.
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`

	// Location is the district the user works in; searched verbatim.
	Location string `json:"location,omitempty" bson:"location,omitempty" db:"location"`

	// RefreshToken is the single refresh token currently valid for this user.
	// Empty means no active session. Never exposed in API responses.
	RefreshToken string `json:"-" bson:"refresh_token,omitempty" db:"refresh_token"`

	// IsPublic controls whether the profile is listed and searchable.
	IsPublic bool `json:"is_public" bson:"is_public" db:"is_public"`

	// ProfilePhoto is the storage key of the avatar picture.
	ProfilePhoto string `json:"profile_photo,omitempty" bson:"profile_photo,omitempty" db:"profile_photo"`

	// BannerPhoto is the storage key of the banner picture.
	BannerPhoto string `json:"banner_photo,omitempty" bson:"banner_photo,omitempty" db:"banner_photo"`

	// Description is free-form profile text.
	Description string `json:"description,omitempty" bson:"description,omitempty" db:"description"`

	// ReferencePhotos are storage keys of gallery pictures.
	ReferencePhotos []string `json:"reference_photos,omitempty" bson:"reference_photos,omitempty" db:"reference_photos"`

	// Characteristics is the optional physical-attributes sub-record.
	Characteristics *Characteristics `json:"characteristics,omitempty" bson:"characteristics,omitempty" db:"characteristics"`

	// Tags are whitelisted labels used for categorization.
	Tags []string `json:"tags,omitempty" bson:"tags,omitempty" db:"tags"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the account.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// Characteristics describes optional physical attributes of a profile.
type Characteristics struct {
	Height       *int       `json:"height,omitempty" bson:"height,omitempty"`
	Weight       *int       `json:"weight,omitempty" bson:"weight,omitempty"`
	Eyes         string     `json:"eyes,omitempty" bson:"eyes,omitempty"`
	Hair         string     `json:"hair,omitempty" bson:"hair,omitempty"`
	Enhanced     *bool      `json:"enhanced,omitempty" bson:"enhanced,omitempty"`
	Birthday     *time.Time `json:"birthday,omitempty" bson:"birthday,omitempty"`
	BirthPlace   string     `json:"birth_place,omitempty" bson:"birth_place,omitempty"`
	Zodiac       string     `json:"zodiac,omitempty" bson:"zodiac,omitempty"`
	Measurements string     `json:"measurements,omitempty" bson:"measurements,omitempty"`
	Orientation  string     `json:"orientation,omitempty" bson:"orientation,omitempty"`
	Ethnicity    string     `json:"ethnicity,omitempty" bson:"ethnicity,omitempty"`
}

// PublicProfile is the subset of User visible to anonymous callers.
type PublicProfile struct {
	ID              string           `json:"id" bson:"_id"`
	Username        string           `json:"username" bson:"username"`
	Name            string           `json:"name,omitempty" bson:"name,omitempty"`
	Price           int              `json:"price,omitempty" bson:"price,omitempty"`
	Age             int              `json:"age,omitempty" bson:"age,omitempty"`
	Phone           string           `json:"phone,omitempty" bson:"phone,omitempty"`
	Location        string           `json:"location,omitempty" bson:"location,omitempty"`
	ProfilePhoto    string           `json:"profile_photo,omitempty" bson:"profile_photo,omitempty"`
	BannerPhoto     string           `json:"banner_photo,omitempty" bson:"banner_photo,omitempty"`
	Description     string           `json:"description,omitempty" bson:"description,omitempty"`
	ReferencePhotos []string         `json:"reference_photos,omitempty" bson:"reference_photos,omitempty"`
	Characteristics *Characteristics `json:"characteristics,omitempty" bson:"characteristics,omitempty"`
	Tags            []string         `json:"tags,omitempty" bson:"tags,omitempty"`
}

// PhotoUploads names already-stored photos keyed by the form field they
// arrived in.
type PhotoUploads struct {
	Profile    string
	Banner     string
	References []string
}

// Empty reports whether no photo was uploaded.
func (p PhotoUploads) Empty() bool {
	return p.Profile == "" && p.Banner == "" && len(p.References) == 0
}

// RefreshIssuer mints refresh tokens for an identity.
type RefreshIssuer interface {
	IssueRefreshToken(id auth.Identity) (string, error)
}

// Identity returns the identity tokens are bound to.
func (u *User) Identity() auth.Identity {
	return auth.Identity{ID: u.ID, Username: u.Username}
}

// RefreshSession replaces the refresh token with a newly issued one.
func (u *User) RefreshSession(issuer RefreshIssuer) error {
	token, err := issuer.IssueRefreshToken(u.Identity())
	if err != nil {
		return err
	}
	u.RefreshToken = token
	return nil
}

// EndSession clears the refresh token.
func (u *User) EndSession() {
	u.RefreshToken = ""
}

// PasswordMatches reports whether candidate matches the stored hash.
func (u *User) PasswordMatches(candidate string) bool {
	return auth.ComparePassword(candidate, u.PasswordHash)
}

// HoldsRefreshToken reports whether token is the refresh token currently
// stored on the user. A cleared token never matches.
func (u *User) HoldsRefreshToken(token string) bool {
	if u.RefreshToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(token)) == 1
}

// ApplyPhotos records uploaded photo keys. References replace the gallery.
func (u *User) ApplyPhotos(photos PhotoUploads) {
	if len(photos.References) > 0 {
		u.ReferencePhotos = append([]string(nil), photos.References...)
	}
	if photos.Profile != "" {
		u.ProfilePhoto = photos.Profile
	}
	if photos.Banner != "" {
		u.BannerPhoto = photos.Banner
	}
}

// Public projects the user onto its public profile.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:              u.ID,
		Username:        u.Username,
		Name:            u.Name,
		Price:           u.Price,
		Age:             u.Age,
		Phone:           u.Phone,
		Location:        u.Location,
		ProfilePhoto:    u.ProfilePhoto,
		BannerPhoto:     u.BannerPhoto,
		Description:     u.Description,
		ReferencePhotos: u.ReferencePhotos,
		Characteristics: u.Characteristics,
		Tags:            u.Tags,
	}
}

// PublicProfiles projects every user in users.
func PublicProfiles(users []User) []PublicProfile {
	profiles := make([]PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}
	return profiles
}
