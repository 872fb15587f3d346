// Package fs implements the conversation store on the local filesystem.
// Each session is one pretty-printed JSON file named <session_id>.json
// under the configured directory. The directory is created on first save,
// not at startup.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/densefog/parley/pkg/errors"
	"github.com/densefog/parley/pkg/types"
)

// Store is a filesystem-backed conversation store.
type Store struct {
	dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Backend implements memory.Store.
func (s *Store) Backend() string {
	return "filesystem"
}

// Load reads the session log. A missing file means the session has no
// history yet and yields an empty log.
func (s *Store) Load(ctx context.Context, sessionID string) ([]types.Message, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Message{}, nil
		}
		return nil, errors.NewStorageError(s.Backend(), "load", err.Error())
	}

	var messages []types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, errors.NewStorageError(s.Backend(), "load",
			fmt.Sprintf("decode session %s: %v", sessionID, err))
	}
	return messages, nil
}

// Save replaces the session log, creating the directory if needed.
func (s *Store) Save(ctx context.Context, sessionID string, messages []types.Message) error {
	if messages == nil {
		messages = []types.Message{}
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return errors.NewStorageError(s.Backend(), "save", err.Error())
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewStorageError(s.Backend(), "save", err.Error())
	}

	if err := os.WriteFile(s.path(sessionID), data, 0644); err != nil {
		return errors.NewStorageError(s.Backend(), "save", err.Error())
	}
	return nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}
