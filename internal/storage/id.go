package storage

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// newEmojiID returns an id of the form e_<userID>_<8 hex digits>.
//
// The hex digits are the first 32 bits of a random UUID.
func newEmojiID(userID string) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return "e_" + userID + "_" + hex.EncodeToString(u[:4]), nil
}
