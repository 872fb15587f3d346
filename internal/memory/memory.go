// Package memory defines the conversation store contract. A store keeps
// one ordered message log per session; backends live in subpackages.
package memory

import (
	"context"

	"github.com/densefog/parley/pkg/types"
)

// Store persists per-session conversation logs.
//
// Load returns an empty log for sessions that have never been saved;
// absence is not an error. Save replaces the stored log with the full
// message sequence. Concurrent saves to the same session are
// last-writer-wins.
type Store interface {
	// Backend names the storage backend for logs, metrics, and health.
	Backend() string

	Load(ctx context.Context, sessionID string) ([]types.Message, error)
	Save(ctx context.Context, sessionID string, messages []types.Message) error
}
