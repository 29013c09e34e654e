package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitrine-app/apiserver/types"
)

type contextKey string

const contextAccessTokenKey contextKey = "access_token"

func withAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextAccessTokenKey, token)
}

func accessTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(contextAccessTokenKey).(string)
	if !ok || token == "" {
		return "", errors.New("missing access token")
	}
	return token, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeResult writes res with okStatus on success, or the status matching its
// failure kind.
func writeResult[T any](w http.ResponseWriter, res types.Result[T], okStatus int) {
	if res.OK() {
		writeJSON(w, okStatus, res)
		return
	}
	writeJSON(w, statusFor(res.Err.Kind), res)
}

func writeError(w http.ResponseWriter, status int, kind types.ErrorKind, message string) {
	writeJSON(w, status, types.Fail[struct{}](&types.Failure{Kind: kind, Message: message}))
}

func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidationFailed:
		return http.StatusBadRequest
	case types.KindDuplicateKey:
		return http.StatusConflict
	case types.KindAuthenticationFailed, types.KindInvalidRefreshToken:
		return http.StatusUnauthorized
	case types.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

// parsePagination reads page and limit. Missing values are returned as 0.
func parsePagination(r *http.Request) (page, limit int, err error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	return page, limit, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}
