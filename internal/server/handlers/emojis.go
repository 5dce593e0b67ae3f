// Package handlers implements the HTTP handlers of the emoji API.
package handlers

import (
	"context"
	"errors"

	apierrors "github.com/maruel/emojistore/internal/errors"
	"github.com/maruel/emojistore/internal/models"
	"github.com/maruel/emojistore/internal/storage"
	"github.com/maruel/emojistore/internal/storage/git"
)

// EmojiHandler serves the emoji collection of each user.
type EmojiHandler struct {
	store   *storage.DocumentStore
	history *git.Repo
}

// NewEmojiHandler creates a handler over store. history may be nil.
func NewEmojiHandler(store *storage.DocumentStore, history *git.Repo) *EmojiHandler {
	return &EmojiHandler{store: store, history: history}
}

// Create stores a new emoji.
func (h *EmojiHandler) Create(ctx context.Context, req *models.CreateEmojiRequest) (*models.CreateEmojiResponse, error) {
	rec, err := h.store.Create(ctx, req.UserID, req.TemplateID, req.Status, req.LottieJSON)
	if err != nil {
		return nil, storageError(err)
	}
	return &models.CreateEmojiResponse{OK: true, Item: rec}, nil
}

// List returns the user's emojis, newest first, each with its document.
func (h *EmojiHandler) List(ctx context.Context, req *models.ListEmojisRequest) (*models.ListEmojisResponse, error) {
	items, err := h.store.List(ctx, req.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	return &models.ListEmojisResponse{Items: items}, nil
}

// Update changes the status of an emoji.
func (h *EmojiHandler) Update(ctx context.Context, req *models.UpdateEmojiRequest) (*models.UpdateEmojiResponse, error) {
	rec, err := h.store.Update(ctx, req.UserID, req.ID, req.Status)
	if err != nil {
		return nil, storageError(err)
	}
	return &models.UpdateEmojiResponse{OK: true, Item: rec}, nil
}

// Delete removes an emoji.
func (h *EmojiHandler) Delete(ctx context.Context, req *models.DeleteEmojiRequest) (*models.DeleteEmojiResponse, error) {
	if err := h.store.Delete(ctx, req.UserID, req.ID); err != nil {
		return nil, storageError(err)
	}
	return &models.DeleteEmojiResponse{OK: true}, nil
}

// History lists the commits that touched the user's index. It is empty when
// history is disabled.
func (h *EmojiHandler) History(ctx context.Context, req *models.HistoryRequest) (*models.HistoryResponse, error) {
	path, err := storage.IndexPath(req.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	if h.history == nil {
		return &models.HistoryResponse{Commits: []*git.Commit{}}, nil
	}
	commits, err := h.history.History(ctx, path, req.Limit)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to read history", err)
	}
	return &models.HistoryResponse{Commits: commits}, nil
}

// Snapshot returns the user's index as it was at a commit.
func (h *EmojiHandler) Snapshot(ctx context.Context, req *models.SnapshotRequest) (*models.SnapshotResponse, error) {
	path, err := storage.IndexPath(req.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	if h.history == nil {
		return nil, apierrors.NotFound("commit")
	}
	raw, err := h.history.FileAt(ctx, req.Hash, path)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, apierrors.NotFound("commit").Wrap(err)
		}
		return nil, apierrors.InternalWithError("failed to read history", err)
	}
	items, err := storage.DecodeIndex(raw)
	if err != nil {
		return nil, apierrors.InternalWithError("corrupt index in history", err)
	}
	return &models.SnapshotResponse{Hash: req.Hash, Items: items}, nil
}
