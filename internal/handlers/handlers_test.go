package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitrine-app/apiserver/internal/auth"
	"github.com/vitrine-app/apiserver/internal/services"
	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/internal/store"
	"github.com/vitrine-app/apiserver/types"
)

const pngBytes = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

type testAPI struct {
	router http.Handler
	repo   *store.MemoryUserRepository
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	disk, err := storage.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, disk.EnsureBucket(context.Background()))
	photos := storage.NewPhotoStore(disk)

	repo := store.NewMemoryUserRepository()
	issuer := auth.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	users := services.NewUserService(repo, issuer, []string{"blonde", "travel"}, services.WithPhotos(photos))

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) { AuthRouter(r, users) })
	r.Route("/users", func(r chi.Router) { UserRouter(r, users) })
	r.Route("/photos", func(r chi.Router) { PhotoRouter(r, photos) })
	return testAPI{router: r, repo: repo}
}

func (a testAPI) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a testAPI) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(t, method, path, token, body, "application/json")
}

func (a testAPI) register(t *testing.T, email, username string) types.TokenPair {
	t.Helper()
	rec := a.doJSON(t, http.MethodPost, "/auth/register", "", types.CreateUserRequest{Email: email, Username: username, Password: "x"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[types.TokenPair](t, rec).Data
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) types.Result[T] {
	t.Helper()
	var res types.Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func updatePayload(public bool) map[string]any {
	return map[string]any{
		"name":      "Alice",
		"age":       "25",
		"price":     "80",
		"phone":     "+447911123456",
		"location":  "Centro",
		"tags":      []string{"blonde"},
		"is_public": public,
	}
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	pair := api.register(t, "a@b.com", "al")
	assert.NotEmpty(t, pair.AccessToken)

	dup := api.doJSON(t, http.MethodPost, "/auth/register", "", types.CreateUserRequest{Email: "a@b.com", Username: "x", Password: "x"})
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, types.KindDuplicateKey, decode[types.TokenPair](t, dup).Err.Kind)

	badLogin := api.doJSON(t, http.MethodPost, "/auth/login", "", types.LoginRequest{Email: "a@b.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, badLogin.Code)

	login := api.doJSON(t, http.MethodPost, "/auth/login", "", types.LoginRequest{Username: "al", Password: "x"})
	require.Equal(t, http.StatusOK, login.Code)
	session := decode[types.TokenPair](t, login).Data

	refresh := api.doJSON(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusOK, refresh.Code)
	assert.Equal(t, session.RefreshToken, decode[types.TokenPair](t, refresh).Data.RefreshToken)

	noAuth := api.doJSON(t, http.MethodPost, "/auth/logout", "", RefreshRequest{RefreshToken: session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, noAuth.Code)

	logout := api.doJSON(t, http.MethodPost, "/auth/logout", session.AccessToken, RefreshRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusOK, logout.Code)
	assert.Equal(t, "The refresh token has been removed!", decode[types.Message](t, logout).Data.Message)

	stale := api.doJSON(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, stale.Code)
	assert.Equal(t, types.KindInvalidRefreshToken, decode[types.TokenPair](t, stale).Err.Kind)
}

func TestRegister_BadRequest(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.doJSON(t, http.MethodPost, "/auth/register", "", types.CreateUserRequest{Email: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"Invalid Email", "Invalid Username", "Invalid Password"}, decode[types.TokenPair](t, rec).Err.Details)
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	pair := api.register(t, "a@b.com", "al")

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/users/me", "", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/users/me", pair.RefreshToken, nil, "").Code)

	rec := api.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), pair.RefreshToken)
	assert.Equal(t, "a@b.com", decode[types.User](t, rec).Data.Email)
}

func TestUpdateMe_JSON(t *testing.T) {
	api := newTestAPI(t)
	pair := api.register(t, "a@b.com", "al")

	rec := api.doJSON(t, http.MethodPut, "/users/me", pair.AccessToken, updatePayload(true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User updated", decode[types.Message](t, rec).Data.Message)

	invalid := updatePayload(true)
	invalid["age"] = "abc"
	invalid["price"] = "10"
	rec = api.doJSON(t, http.MethodPut, "/users/me", pair.AccessToken, invalid)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"Invalid Age", "Invalid Price"}, decode[types.Message](t, rec).Err.Details)

	public := api.do(t, http.MethodGet, "/users/al", "", nil, "")
	require.Equal(t, http.StatusOK, public.Code)
	profile := decode[types.PublicProfile](t, public).Data
	assert.Equal(t, 80, profile.Price)
	assert.NotContains(t, public.Body.String(), "a@b.com")
}

func TestUpdateMe_MultipartPhotos(t *testing.T) {
	api := newTestAPI(t)
	pair := api.register(t, "a@b.com", "al")

	body, contentType := multipartUpdate(t, updatePayload(true), map[string][]string{
		"profile":    {pngBytes},
		"references": {pngBytes, pngBytes},
	})
	rec := api.do(t, http.MethodPut, "/users/me", pair.AccessToken, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user, err := api.repo.GetByUsername(context.Background(), "al")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(user.ProfilePhoto, "photos/"+user.ID+"/"))
	assert.True(t, strings.HasSuffix(user.ProfilePhoto, ".png"))
	assert.Len(t, user.ReferencePhotos, 2)

	photo := api.do(t, http.MethodGet, "/"+user.ProfilePhoto, "", nil, "")
	require.Equal(t, http.StatusOK, photo.Code)
	assert.Equal(t, "image/png", photo.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, photo.Body.String())

	missing := api.do(t, http.MethodGet, "/photos/"+user.ID+"/nope.png", "", nil, "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestUpdateMe_RejectsNonImage(t *testing.T) {
	api := newTestAPI(t)
	pair := api.register(t, "a@b.com", "al")

	body, contentType := multipartUpdate(t, updatePayload(true), map[string][]string{
		"banner": {"just some text"},
	})
	rec := api.do(t, http.MethodPut, "/users/me", pair.AccessToken, body, contentType)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"Invalid Photo"}, decode[types.Message](t, rec).Err.Details)
}

func TestListAndSearch(t *testing.T) {
	api := newTestAPI(t)
	for i, name := range []string{"u0", "u1", "u2"} {
		pair := api.register(t, name+"@b.com", name)
		rec := api.doJSON(t, http.MethodPut, "/users/me", pair.AccessToken, updatePayload(i != 1))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	all := api.do(t, http.MethodGet, "/users", "", nil, "")
	require.Equal(t, http.StatusOK, all.Code)
	assert.Len(t, decode[[]types.PublicProfile](t, all).Data, 2)

	page := api.do(t, http.MethodGet, "/users?page=2&limit=1", "", nil, "")
	require.Equal(t, http.StatusOK, page.Code)
	profiles := decode[[]types.PublicProfile](t, page).Data
	require.Len(t, profiles, 1)
	assert.Equal(t, "u2", profiles[0].Username)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/users?page=abc", "", nil, "").Code)

	search := api.do(t, http.MethodGet, "/users/search?location=Centro", "", nil, "")
	require.Equal(t, http.StatusOK, search.Code)
	assert.Len(t, decode[[]types.PublicProfile](t, search).Data, 2)

	ghost := api.do(t, http.MethodGet, "/users/ghost", "", nil, "")
	assert.Equal(t, http.StatusNotFound, ghost.Code)
	assert.Equal(t, types.KindNotFound, decode[types.PublicProfile](t, ghost).Err.Kind)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(types.KindValidationFailed))
	assert.Equal(t, http.StatusConflict, statusFor(types.KindDuplicateKey))
	assert.Equal(t, http.StatusUnauthorized, statusFor(types.KindAuthenticationFailed))
	assert.Equal(t, http.StatusUnauthorized, statusFor(types.KindInvalidRefreshToken))
	assert.Equal(t, http.StatusNotFound, statusFor(types.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(types.KindInternal))
}

func multipartUpdate(t *testing.T, data map[string]any, files map[string][]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("data", string(raw)))

	for field, contents := range files {
		for i, content := range contents {
			fw, err := mw.CreateFormFile(field, field+string(rune('a'+i))+".bin")
			require.NoError(t, err)
			_, err = fw.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
