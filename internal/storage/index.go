package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// indexRow is one element of an index file.
//
// An element that does not decode as a Record is kept verbatim so it survives
// a rewrite of the index, but is otherwise invisible.
type indexRow struct {
	rec   Record
	raw   json.RawMessage
	valid bool
}

func (r *indexRow) UnmarshalJSON(b []byte) error {
	r.raw = append(json.RawMessage(nil), b...)
	r.rec = Record{}
	r.valid = false
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil
	}
	r.rec = rec
	r.valid = true
	return nil
}

func (r indexRow) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return r.raw, nil
	}
	return json.Marshal(r.rec)
}

// find returns the position of the valid row holding id, or -1.
func find(rows []indexRow, id string) int {
	for i := range rows {
		if rows[i].valid && rows[i].rec.ID == id {
			return i
		}
	}
	return -1
}

// records returns the valid rows in order.
func records(rows []indexRow) []Record {
	out := make([]Record, 0, len(rows))
	for i := range rows {
		if rows[i].valid {
			out = append(out, rows[i].rec)
		}
	}
	return out
}

// DecodeIndex parses the content of an index file. Elements that are not
// records are skipped.
func DecodeIndex(data []byte) ([]Record, error) {
	var rows []indexRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return records(rows), nil
}
