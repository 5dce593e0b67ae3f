package handlers

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/maruel/emojistore/internal/models"
	"github.com/maruel/emojistore/internal/storage"
)

// SchemaHandler serves the JSON Schemas of the API types.
type SchemaHandler struct {
	schemas *models.SchemaResponse
}

// NewSchemaHandler reflects the schemas once.
func NewSchemaHandler() *SchemaHandler {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return &SchemaHandler{schemas: &models.SchemaResponse{
		Record:        r.Reflect(&storage.Record{}),
		Item:          r.Reflect(&storage.Item{}),
		CreateRequest: r.Reflect(&models.CreateEmojiRequest{}),
		UpdateRequest: r.Reflect(&models.UpdateEmojiRequest{}),
	}}
}

// Schema returns the schemas.
func (h *SchemaHandler) Schema(ctx context.Context, req *models.SchemaRequest) (*models.SchemaResponse, error) {
	return h.schemas, nil
}
