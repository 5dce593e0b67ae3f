package handlers

import (
	"errors"

	apierrors "github.com/maruel/emojistore/internal/errors"
	"github.com/maruel/emojistore/internal/storage"
)

// storageError maps a DocumentStore error to its API error.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInvalidArgument):
		return apierrors.BadRequest(err.Error()).Wrap(err)
	case errors.Is(err, storage.ErrNotFound):
		return apierrors.NotFound("emoji").Wrap(err)
	default:
		return apierrors.Storage(err)
	}
}
