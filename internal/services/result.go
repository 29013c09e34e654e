package services

import (
	"errors"
	"fmt"

	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/internal/store"
	"github.com/vitrine-app/apiserver/internal/validation"
	"github.com/vitrine-app/apiserver/types"
	"go.uber.org/zap"
)

const msgInvalidPhoto = "Invalid Photo"

// run executes one operation and folds its error into a Result. A panic is
// reported as an internal failure.
func run[T any](s *UserService, op string, fn func() (T, error)) (result types.Result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.Fail[T](s.fail(op, fmt.Errorf("panic: %v", rec)))
		}
	}()

	data, err := fn()
	if err != nil {
		return types.Fail[T](s.fail(op, err))
	}
	return types.Ok(data)
}

func (s *UserService) fail(op string, err error) *types.Failure {
	failure := Classify(err)
	if failure.Kind == types.KindInternal {
		s.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Debug("operation rejected",
			zap.String("op", op),
			zap.String("kind", string(failure.Kind)),
			zap.Error(err),
		)
	}
	return failure
}

// Classify maps an error from the account layer onto a Failure.
func Classify(err error) *types.Failure {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return &types.Failure{
			Kind:    types.KindValidationFailed,
			Message: validation.ErrValidationFailed.Error(),
			Details: verr.Messages(),
		}
	case errors.Is(err, storage.ErrUnsupportedPhotoType), errors.Is(err, storage.ErrPhotoTooLarge):
		return &types.Failure{
			Kind:    types.KindValidationFailed,
			Message: validation.ErrValidationFailed.Error(),
			Details: []string{msgInvalidPhoto},
		}
	case errors.Is(err, store.ErrDuplicateKey):
		return &types.Failure{Kind: types.KindDuplicateKey, Message: "email or username already taken"}
	case errors.Is(err, ErrInvalidRefreshToken):
		return &types.Failure{Kind: types.KindInvalidRefreshToken, Message: "invalid refresh token"}
	case errors.Is(err, ErrAuthenticationFailed):
		return &types.Failure{Kind: types.KindAuthenticationFailed, Message: "invalid credentials"}
	case errors.Is(err, store.ErrNotFound):
		return &types.Failure{Kind: types.KindNotFound, Message: "user not found"}
	default:
		return &types.Failure{Kind: types.KindInternal, Message: "internal error"}
	}
}
