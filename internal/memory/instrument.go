package memory

import (
	"context"
	"time"

	"github.com/densefog/parley/internal/metrics"
	"github.com/densefog/parley/internal/observability"
	"github.com/densefog/parley/pkg/types"
)

// Instrument wraps a store with metrics and tracing. Every backend
// returned by the factory goes through this wrapper.
func Instrument(store Store) Store {
	return &instrumented{next: store}
}

type instrumented struct {
	next Store
}

func (s *instrumented) Backend() string {
	return s.next.Backend()
}

func (s *instrumented) Load(ctx context.Context, sessionID string) ([]types.Message, error) {
	ctx, span := observability.StartStoreSpan(ctx, s.next.Backend(), "load")
	defer span.End()

	start := time.Now()
	messages, err := s.next.Load(ctx, sessionID)
	metrics.RecordStoreOperation(s.next.Backend(), "load", err, time.Since(start).Seconds())

	if err != nil {
		observability.RecordError(span, err)
	}
	return messages, err
}

func (s *instrumented) Save(ctx context.Context, sessionID string, messages []types.Message) error {
	ctx, span := observability.StartStoreSpan(ctx, s.next.Backend(), "save")
	defer span.End()

	start := time.Now()
	err := s.next.Save(ctx, sessionID, messages)
	metrics.RecordStoreOperation(s.next.Backend(), "save", err, time.Since(start).Seconds())

	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}
