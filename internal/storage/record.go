package storage

import "encoding/json"

// DefaultStatus is the status given to records created without one.
const DefaultStatus = "draft"

// Record is one entry of a user's index.
type Record struct {
	ID         string  `json:"id" jsonschema:"description=Record identifier e_<userId>_<hex8>"`
	UserID     string  `json:"userId" jsonschema:"description=Owning user"`
	TemplateID *string `json:"templateId" jsonschema:"description=Opaque template reference"`
	Status     string  `json:"status" jsonschema:"description=Free-form status, draft by default"`
	CreatedAt  int64   `json:"createdAt" jsonschema:"description=Creation time in milliseconds since epoch"`
	File       string  `json:"file" jsonschema:"description=Blob file name relative to the user directory"`
}

// Item is a Record enriched with its document.
//
// LottieJSON is nil, serialized as null, when the blob could not be parsed.
type Item struct {
	Record
	LottieJSON json.RawMessage `json:"lottieJson" jsonschema:"description=Document stored for this record"`
}
