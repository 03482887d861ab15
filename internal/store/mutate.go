package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aiassist/core/internal/models"
)

const maxMutateAttempts = 8

// ErrSkipWrite may be returned by a MutateUser callback to finish without
// persisting. MutateUser then returns the loaded user and a nil error.
var ErrSkipWrite = errors.New("store: skip write")

// MutateUser loads the user, applies fn and writes the result back with a
// version check, reloading and re-running fn on conflicts. fn must be free
// of side effects other than mutating u since it may run more than once.
func MutateUser(ctx context.Context, s UserStore, id string, fn func(u *models.User) error) (*models.User, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(u); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return u, nil
			}
			return nil, err
		}
		err = s.UpdateUser(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("mutate user %s: %w after %d attempts", id, ErrVersionConflict, maxMutateAttempts)
}
