package service

import (
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// classify maps a store error onto the engine's error classes. Errors
// that already carry a class pass through untouched.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var cls *types.Error
	if errors.As(err, &cls) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return types.ErrNotFound.WithMessage(what + " not found")
	}
	return types.ErrStorage.Wrap(fmt.Errorf("%s: %w", what, err))
}
