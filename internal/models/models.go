// Package models defines the request and response types of the HTTP API.
//
// Request types bind their fields from the JSON body, or from the URL with
// `path:"..."` and `query:"..."` struct tags. Each request type validates its
// own fields; the storage package performs the remaining checks.
package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	apierrors "github.com/maruel/emojistore/internal/errors"
	"github.com/maruel/emojistore/internal/storage"
	"github.com/maruel/emojistore/internal/storage/git"
)

// Validatable is implemented by request types that can validate their fields.
// server.Wrap uses this interface as a type constraint to ensure all request
// types provide validation.
type Validatable interface {
	Validate() error
}

// --- Health ---

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// --- Emojis ---

// CreateEmojiRequest is a request to store a new emoji.
type CreateEmojiRequest struct {
	UserID     string          `json:"userId" jsonschema:"required,description=Owning user"`
	TemplateID *string         `json:"templateId,omitempty" jsonschema:"description=Opaque template reference"`
	Status     string          `json:"status,omitempty" jsonschema:"description=Initial status, draft when omitted"`
	LottieJSON json.RawMessage `json:"lottieJson" jsonschema:"required,description=Lottie animation document"`
}

// Validate validates the create emoji request fields.
func (r *CreateEmojiRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	if isNullJSON(r.LottieJSON) {
		return apierrors.MissingField("lottieJson")
	}
	return nil
}

// CreateEmojiResponse is the response to a create emoji request.
type CreateEmojiResponse struct {
	OK   bool            `json:"ok"`
	Item *storage.Record `json:"item"`
}

// ListEmojisRequest is a request to list a user's emojis.
type ListEmojisRequest struct {
	UserID string `json:"-" query:"userId"`
}

// Validate validates the list emojis request fields.
func (r *ListEmojisRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	return nil
}

// ListEmojisResponse is the response to a list emojis request.
type ListEmojisResponse struct {
	Items []storage.Item `json:"items"`
}

// UpdateEmojiRequest is a request to change the status of an emoji.
type UpdateEmojiRequest struct {
	ID     string `json:"-" path:"id"`
	UserID string `json:"-" query:"userId"`
	Status string `json:"status,omitempty" jsonschema:"description=New status, left unchanged when empty"`
}

// Validate validates the update emoji request fields.
func (r *UpdateEmojiRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	if r.ID == "" {
		return apierrors.MissingField("id")
	}
	return nil
}

// UpdateEmojiResponse is the response to an update emoji request.
type UpdateEmojiResponse struct {
	OK   bool            `json:"ok"`
	Item *storage.Record `json:"item"`
}

// DeleteEmojiRequest is a request to delete an emoji.
type DeleteEmojiRequest struct {
	ID     string `json:"-" path:"id"`
	UserID string `json:"-" query:"userId"`
}

// Validate validates the delete emoji request fields.
func (r *DeleteEmojiRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	if r.ID == "" {
		return apierrors.MissingField("id")
	}
	return nil
}

// DeleteEmojiResponse is the response to a delete emoji request.
type DeleteEmojiResponse struct {
	OK bool `json:"ok"`
}

// --- History ---

// HistoryRequest is a request for the change history of a user's index.
type HistoryRequest struct {
	UserID string `json:"-" query:"userId"`
	Limit  int    `json:"-" query:"limit"`
}

// Validate validates the history request fields.
func (r *HistoryRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	if r.Limit < 0 {
		return apierrors.BadRequest("limit must be non-negative")
	}
	return nil
}

// HistoryResponse lists commits, newest first.
type HistoryResponse struct {
	Commits []*git.Commit `json:"commits"`
}

// SnapshotRequest is a request for a user's index as of one commit.
type SnapshotRequest struct {
	Hash   string `json:"-" path:"hash"`
	UserID string `json:"-" query:"userId"`
}

// Validate validates the snapshot request fields.
func (r *SnapshotRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apierrors.MissingField("userId")
	}
	if r.Hash == "" {
		return apierrors.MissingField("hash")
	}
	return nil
}

// SnapshotResponse holds the records of the index at a commit, without
// their documents.
type SnapshotResponse struct {
	Hash  string           `json:"hash"`
	Items []storage.Record `json:"items"`
}

// --- Schema ---

// SchemaRequest is the request type for the API schema (empty).
type SchemaRequest struct{}

// Validate is a no-op for SchemaRequest.
func (r *SchemaRequest) Validate() error {
	return nil
}

// SchemaResponse holds the JSON Schemas of the stored and exchanged types.
type SchemaResponse struct {
	Record        *jsonschema.Schema `json:"record"`
	Item          *jsonschema.Schema `json:"item"`
	CreateRequest *jsonschema.Schema `json:"createRequest"`
	UpdateRequest *jsonschema.Schema `json:"updateRequest"`
}

func isNullJSON(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
