package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoStore_SaveAndOpen(t *testing.T) {
	disk, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, disk.EnsureBucket(context.Background()))

	photos := NewPhotoStore(disk)
	photos.newID = func() string { return "fixed" }

	key, err := photos.Save(context.Background(), "u-1", Upload{
		Filename:    "me.png",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("\x89PNG"),
	})
	require.NoError(t, err)
	assert.Equal(t, "photos/u-1/fixed.png", key)

	rc, contentType, err := photos.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(body))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, photos.Remove(context.Background(), key, ""))
	_, _, err = photos.Open(context.Background(), key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPhotoStore_Rejects(t *testing.T) {
	disk, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	photos := NewPhotoStore(disk)
	ctx := context.Background()

	_, err = photos.Save(ctx, "u-1", Upload{ContentType: "application/pdf", Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrUnsupportedPhotoType)

	_, err = photos.Save(ctx, "u-1", Upload{ContentType: "image/jpeg", Size: MaxPhotoSize + 1, Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrPhotoTooLarge)

	_, err = photos.Save(ctx, "../u-1", Upload{ContentType: "image/jpeg", Body: bytes.NewReader(nil)})
	assert.Error(t, err)

	_, _, err = photos.Open(ctx, "secrets/config")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPhotoExtension(t *testing.T) {
	ext, err := PhotoExtension("image/jpeg; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", ext)

	ext, err = PhotoExtension("IMAGE/WEBP")
	require.NoError(t, err)
	assert.Equal(t, ".webp", ext)

	_, err = PhotoExtension("")
	assert.ErrorIs(t, err, ErrUnsupportedPhotoType)
}

func TestDiskStorage_RejectsEscapingKeys(t *testing.T) {
	disk, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	err = disk.Put(context.Background(), "../outside.png", strings.NewReader("x"), 1, "image/png")
	assert.Error(t, err)
	_, err = disk.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}
