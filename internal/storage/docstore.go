// Package storage implements the per-user document store.
//
// Layout on disk, relative to the root directory:
//
//	<userId>/index.json   JSON array of Record, newest first
//	<userId>/<id>.json    the raw document of one record
//
// The index is read from disk on every operation; nothing is cached.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maruel/emojistore/internal/jsonldb"
)

const indexFileName = "index.json"

// maxIDAttempts bounds id regeneration when a fresh id collides with an
// existing record of the same user.
const maxIDAttempts = 8

// lockStripes is the number of mutexes users are spread over.
const lockStripes = 64

// DocumentStore owns all reads and writes to the users' index and blob files.
type DocumentStore struct {
	rootDir string
	now     func() time.Time

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

// NewDocumentStore returns a store rooted at rootDir, creating it if needed.
func NewDocumentStore(rootDir string) (*DocumentStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &DocumentStore{
		rootDir: rootDir,
		now:     time.Now,
		seed:    maphash.MakeSeed(),
	}, nil
}

// RootDir returns the root directory path.
func (s *DocumentStore) RootDir() string {
	return s.rootDir
}

// Create stores document as a new record for userID.
//
// An empty status defaults to DefaultStatus. The returned record does not
// carry the document.
func (s *DocumentStore) Create(ctx context.Context, userID string, templateID *string, status string, document json.RawMessage) (*Record, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return nil, err
	}
	if len(document) == 0 || !json.Valid(document) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, errInvalidJSON)
	}
	if status == "" {
		status = DefaultStatus
	}

	unlock := s.lock(userID)
	defer unlock()

	rows := s.readIndex(ctx, userID)
	id, err := uniqueID(userID, rows)
	if err != nil {
		return nil, err
	}
	createdAt := s.now().UnixMilli()

	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}
	fileName := id + ".json"
	if err := jsonldb.WriteFileAtomic(filepath.Join(dir, fileName), document); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	rec := Record{
		ID:         id,
		UserID:     userID,
		TemplateID: templateID,
		Status:     status,
		CreatedAt:  createdAt,
		File:       fileName,
	}
	rows = slices.Insert(rows, 0, indexRow{rec: rec, valid: true})
	if err := s.index(userID).Save(rows); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}
	slog.DebugContext(ctx, "Created record", "user", userID, "id", id)
	return &rec, nil
}

// List returns the records of userID enriched with their documents.
//
// Records without a file, or whose file is missing, are skipped. A document
// that fails to parse is returned as a nil LottieJSON.
func (s *DocumentStore) List(ctx context.Context, userID string) ([]Item, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(userID)
	defer unlock()

	recs := records(s.readIndex(ctx, userID))
	out := make([]Item, 0, len(recs))
	for _, rec := range recs {
		p, ok := s.blobPath(userID, rec.File)
		if !ok {
			continue
		}
		data, err := os.ReadFile(p) //nolint:gosec // G304: file name is validated to be a single path segment
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.WarnContext(ctx, "Failed to read document", "user", userID, "id", rec.ID, "err", err)
			}
			continue
		}
		item := Item{Record: rec}
		if json.Valid(data) {
			item.LottieJSON = json.RawMessage(data)
		} else {
			slog.WarnContext(ctx, "Corrupt document", "user", userID, "id", rec.ID)
		}
		out = append(out, item)
	}
	return out, nil
}

// Update replaces the status of a record when status is not empty.
//
// The index is rewritten in every case.
func (s *DocumentStore) Update(ctx context.Context, userID, emojiID, status string) (*Record, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(userID)
	defer unlock()

	rows := s.readIndex(ctx, userID)
	i := find(rows, emojiID)
	if i < 0 {
		return nil, fmt.Errorf("record %q: %w", emojiID, ErrNotFound)
	}
	if status != "" {
		rows[i].rec.Status = status
	}
	if err := s.index(userID).Save(rows); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}
	rec := rows[i].rec
	return &rec, nil
}

// Delete removes a record and its document.
func (s *DocumentStore) Delete(ctx context.Context, userID, emojiID string) error {
	userID, err := cleanUserID(userID)
	if err != nil {
		return err
	}

	unlock := s.lock(userID)
	defer unlock()

	rows := s.readIndex(ctx, userID)
	i := find(rows, emojiID)
	if i < 0 {
		return fmt.Errorf("record %q: %w", emojiID, ErrNotFound)
	}
	if p, ok := s.blobPath(userID, rows[i].rec.File); ok {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	}
	rows = slices.DeleteFunc(rows, func(r indexRow) bool { return r.valid && r.rec.ID == emojiID })
	if err := s.index(userID).Save(rows); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	slog.DebugContext(ctx, "Deleted record", "user", userID, "id", emojiID)
	return nil
}

// IndexPath returns the path of the index file of userID, relative to the
// root directory. It fails with ErrInvalidArgument when userID cannot name a
// user directory.
func IndexPath(userID string) (string, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return "", err
	}
	return userID + "/" + indexFileName, nil
}

// readIndex returns the index of userID. A missing or unparseable index is
// empty.
func (s *DocumentStore) readIndex(ctx context.Context, userID string) []indexRow {
	rows, err := s.index(userID).Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "Ignoring unreadable index", "user", userID, "err", err)
		}
		return []indexRow{}
	}
	for i := range rows {
		if !rows[i].valid {
			slog.WarnContext(ctx, "Ignoring malformed index entry", "user", userID, "pos", i)
		}
	}
	return rows
}

func (s *DocumentStore) index(userID string) *jsonldb.Array[indexRow] {
	return jsonldb.NewArray[indexRow](filepath.Join(s.userDir(userID), indexFileName))
}

func (s *DocumentStore) userDir(userID string) string {
	return filepath.Join(s.rootDir, userID)
}

// blobPath returns the absolute path of a record's file, or false when the
// record has no usable file name.
func (s *DocumentStore) blobPath(userID, file string) (string, bool) {
	if !isPathSegment(file) {
		return "", false
	}
	return filepath.Join(s.userDir(userID), file), true
}

// lock serializes index read-modify-write cycles for one user. Users sharing
// a stripe also serialize with each other.
func (s *DocumentStore) lock(userID string) func() {
	l := &s.locks[maphash.String(s.seed, userID)%lockStripes]
	l.Lock()
	return l.Unlock
}

func uniqueID(userID string, rows []indexRow) (string, error) {
	for range maxIDAttempts {
		id, err := newEmojiID(userID)
		if err != nil {
			return "", err
		}
		if !slices.ContainsFunc(rows, func(r indexRow) bool { return r.rec.ID == id }) {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a unique id for %q", userID)
}

// cleanUserID trims userID and checks it can be used as a directory name.
func cleanUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, errUserIDRequired)
	}
	if !isPathSegment(userID) {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, errUserIDUnsafe)
	}
	// The data root also holds the configuration and git metadata.
	if strings.HasPrefix(userID, ".") || userID == ConfigFileName {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, errUserIDReserved)
	}
	return userID, nil
}

func isPathSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
