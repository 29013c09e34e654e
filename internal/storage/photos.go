package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// MaxPhotoSize is the largest accepted upload, in bytes.
const MaxPhotoSize = 10 << 20

var (
	ErrUnsupportedPhotoType = errors.New("unsupported photo type")
	ErrPhotoTooLarge        = errors.New("photo too large")
)

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload is a single photo received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PhotoStore names and stores user photos on an ObjectStorage backend.
type PhotoStore struct {
	backend ObjectStorage
	newID   func() string
}

func NewPhotoStore(backend ObjectStorage) *PhotoStore {
	return &PhotoStore{backend: backend, newID: uuid.NewString}
}

// Save stores the upload under photos/<userID>/<uuid><ext> and returns the key.
func (p *PhotoStore) Save(ctx context.Context, userID string, upload Upload) (string, error) {
	if userID == "" || strings.ContainsAny(userID, `/\`) {
		return "", fmt.Errorf("invalid photo owner %q", userID)
	}
	ext, err := PhotoExtension(upload.ContentType)
	if err != nil {
		return "", err
	}
	if upload.Size > MaxPhotoSize {
		return "", ErrPhotoTooLarge
	}

	key := path.Join("photos", userID, p.newID()+ext)
	contentType, _, _ := mime.ParseMediaType(upload.ContentType)
	if err := p.backend.Put(ctx, key, upload.Body, upload.Size, contentType); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return key, nil
}

// Open returns the stored photo and the content type implied by its key.
func (p *PhotoStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	key = path.Clean(key)
	if !strings.HasPrefix(key, "photos/") {
		return nil, "", ErrObjectNotFound
	}
	rc, err := p.backend.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return rc, contentTypeFor(key), nil
}

// Remove deletes stored photos, returning every failure joined.
func (p *PhotoStore) Remove(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := p.backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// PhotoExtension maps an accepted image content type to its file extension.
func PhotoExtension(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedPhotoType
	}
	ext, ok := photoExtensions[strings.ToLower(mediaType)]
	if !ok {
		return "", ErrUnsupportedPhotoType
	}
	return ext, nil
}

func contentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for contentType, e := range photoExtensions {
		if e == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}
