package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/types"
)

// PhotoHandler streams stored photos.
type PhotoHandler struct {
	photos *storage.PhotoStore
}

func NewPhotoHandler(photos *storage.PhotoStore) *PhotoHandler {
	return &PhotoHandler{photos: photos}
}

// PhotoRouter registers photo routes on the given router.
func PhotoRouter(r chi.Router, photos *storage.PhotoStore) {
	handler := NewPhotoHandler(photos)
	r.Get("/*", handler.Get)
}

func (h *PhotoHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := "photos/" + chi.URLParam(r, "*")

	rc, contentType, err := h.photos.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, types.KindNotFound, "photo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, types.KindInternal, "failed to read photo")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
