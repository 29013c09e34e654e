package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vitrine-app/apiserver/internal/services"
	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/types"
)

const (
	maxMultipartMemory  = 32 << 20
	maxReferencePhotos  = 12
	maxUpdateBytes      = (maxReferencePhotos+2)*storage.MaxPhotoSize + maxJSONBytes
	formFieldData       = "data"
	formFieldProfile    = "profile"
	formFieldBanner     = "banner"
	formFieldReferences = "references"
)

var errTooLarge = errors.New("uploaded file too large")

// UserHandler serves profile endpoints.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users *services.UserService) {
	handler := NewUserHandler(users)
	requireAuth := RequireAuth(users)

	r.Get("/", handler.ListPublic)
	r.Get("/search", handler.Search)
	r.With(requireAuth).Get("/me", handler.Me)
	r.With(requireAuth).Put("/me", handler.UpdateMe)
	r.Get("/{username}", handler.GetPublic)
}

// Me returns the caller's full profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, err := accessTokenFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, types.KindAuthenticationFailed, "unauthorized")
		return
	}
	writeResult(w, h.users.GetProfile(r.Context(), token), http.StatusOK)
}

// UpdateMe merges a JSON or multipart profile update into the caller's
// record.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	token, err := accessTokenFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, types.KindAuthenticationFailed, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	req, files, err := parseUpdate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.UpdateProfile(r.Context(), token, req, files), http.StatusOK)
}

// ListPublic returns a page of public profiles.
func (h *UserHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationFailed, err.Error())
		return
	}
	writeResult(w, h.users.ListPublic(r.Context(), page, limit), http.StatusOK)
}

// Search returns public profiles in the requested location.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.users.SearchByLocation(r.Context(), r.URL.Query().Get("location")), http.StatusOK)
}

// GetPublic returns the public profile of a username.
func (h *UserHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.users.GetPublicProfile(r.Context(), chi.URLParam(r, "username")), http.StatusOK)
}

func parseUpdate(r *http.Request) (types.UpdateUserRequest, services.PhotoFiles, error) {
	var req types.UpdateUserRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeJSON(r, &req); err != nil {
			return req, services.PhotoFiles{}, err
		}
		return req, services.PhotoFiles{}, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return req, services.PhotoFiles{}, errors.New("invalid multipart form")
	}
	if raw := strings.TrimSpace(r.FormValue(formFieldData)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, services.PhotoFiles{}, errors.New("invalid data field")
		}
	}

	files, err := parsePhotoFiles(r.MultipartForm)
	if err != nil {
		return req, services.PhotoFiles{}, err
	}
	return req, files, nil
}

func parsePhotoFiles(form *multipart.Form) (services.PhotoFiles, error) {
	var files services.PhotoFiles
	if form == nil {
		return files, nil
	}

	single := func(field string) (*storage.Upload, error) {
		headers := form.File[field]
		if len(headers) == 0 {
			return nil, nil
		}
		if len(headers) > 1 {
			return nil, fmt.Errorf("only one %s photo is allowed", field)
		}
		upload, err := readPhoto(headers[0])
		if err != nil {
			return nil, err
		}
		return &upload, nil
	}

	var err error
	if files.Profile, err = single(formFieldProfile); err != nil {
		return services.PhotoFiles{}, err
	}
	if files.Banner, err = single(formFieldBanner); err != nil {
		return services.PhotoFiles{}, err
	}

	refs := form.File[formFieldReferences]
	if len(refs) > maxReferencePhotos {
		return services.PhotoFiles{}, fmt.Errorf("at most %d reference photos are allowed", maxReferencePhotos)
	}
	for _, header := range refs {
		upload, err := readPhoto(header)
		if err != nil {
			return services.PhotoFiles{}, err
		}
		files.References = append(files.References, upload)
	}
	return files, nil
}

// readPhoto buffers one uploaded file. The content type is sniffed from the
// bytes rather than trusted from the client.
func readPhoto(header *multipart.FileHeader) (storage.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return storage.Upload{}, fmt.Errorf("failed to read %s: %w", header.Filename, err)
	}
	data, err := readFileLimited(file, storage.MaxPhotoSize)
	_ = file.Close()
	if err != nil {
		return storage.Upload{}, err
	}

	return storage.Upload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}, nil
}
