// Package session ties a chat turn together: load the stored history,
// dispatch to the model, persist both new turns.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/densefog/parley/internal/bedrock"
	"github.com/densefog/parley/internal/memory"
	"github.com/densefog/parley/internal/observability"
	"github.com/densefog/parley/internal/persona"
	"github.com/densefog/parley/pkg/types"
)

// Sender dispatches an assembled conversation to the model. Implemented
// by *dispatch.Dispatcher.
type Sender interface {
	Send(ctx context.Context, persona string, history []types.Message, input string) (*bedrock.Result, error)
}

// Manager runs chat turns against one conversation store and one sender.
type Manager struct {
	store   memory.Store
	sender  Sender
	persona persona.Provider
	logger  *slog.Logger
}

// New builds a Manager. All dependencies are required.
func New(store memory.Store, sender Sender, p persona.Provider, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		sender:  sender,
		persona: p,
		logger:  logger,
	}
}

// Chat runs one turn and returns the assistant reply. An empty session id
// starts a fresh conversation under a generated id.
//
// Two concurrent turns on the same session race on load and save; last
// writer wins and the loser's turns are dropped. Callers that need strict
// ordering must serialize their own requests.
func (m *Manager) Chat(ctx context.Context, sessionID, message string) (*types.ChatResponse, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx, span := observability.StartChatSpan(ctx, sessionID)
	defer span.End()

	history, err := m.store.Load(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result, err := m.sender.Send(ctx, m.persona.Text(), history, message)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	now := time.Now()
	history = append(history,
		types.NewMessage(types.RoleUser, message, now),
		types.NewMessage(types.RoleAssistant, result.Text, now),
	)

	// A failed save does not fail the turn; the reply still goes back.
	if err := m.store.Save(ctx, sessionID, history); err != nil {
		observability.RecordError(span, err)
		m.logger.Error("failed to persist conversation",
			"session_id", sessionID,
			"backend", m.store.Backend(),
			"error", err,
		)
	}

	m.logger.Info("chat turn completed",
		"session_id", sessionID,
		"history_len", len(history),
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)

	return &types.ChatResponse{
		Response:  result.Text,
		SessionID: sessionID,
	}, nil
}

// History returns the stored log verbatim. Unknown sessions yield an
// empty log, not an error.
func (m *Manager) History(ctx context.Context, sessionID string) (*types.Conversation, error) {
	history, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &types.Conversation{
		SessionID: sessionID,
		Messages:  history,
	}, nil
}
