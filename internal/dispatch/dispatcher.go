// Package dispatch sends conversations to Bedrock across an ordered list
// of regions with throttle-driven failover.
//
// A single process-wide cursor marks the region to try first. Requests
// that find their region throttled (or denied access) advance the cursor
// and move on; the cursor stays wherever the last success or give-up left
// it, so later requests start in a region that recently worked.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/densefog/parley/internal/bedrock"
	"github.com/densefog/parley/internal/metrics"
	"github.com/densefog/parley/pkg/errors"
	"github.com/densefog/parley/pkg/types"
)

// historyWindow caps how many stored messages are sent to the model.
const historyWindow = 20

// Caller invokes the model in one region. *bedrock.Client implements it.
type Caller interface {
	Region() string
	Converse(ctx context.Context, messages []bedrock.Message) (*bedrock.Result, error)
}

// Dispatcher fans one conversation out to the first region that accepts
// it. Region order is fixed at construction.
type Dispatcher struct {
	callers []Caller
	cursor  atomic.Int64
	logger  *slog.Logger
}

// New builds a dispatcher over regional callers in failover order.
func New(callers []Caller, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		callers: callers,
		logger:  logger,
	}
}

// NewFromClients adapts concrete Bedrock clients.
func NewFromClients(clients []*bedrock.Client, logger *slog.Logger) *Dispatcher {
	callers := make([]Caller, len(clients))
	for i, c := range clients {
		callers[i] = c
	}
	return New(callers, logger)
}

// CurrentRegion reports the region the cursor rests on.
func (d *Dispatcher) CurrentRegion() string {
	return d.callers[d.cursor.Load()].Region()
}

// Regions lists the configured regions in failover order.
func (d *Dispatcher) Regions() []string {
	regions := make([]string, len(d.callers))
	for i, c := range d.callers {
		regions[i] = c.Region()
	}
	return regions
}

// Send assembles the wire sequence (persona, trailing history window, new
// input) and dispatches it. Throttled and access-denied regions advance
// the cursor and the next region is tried; any other failure aborts
// immediately. When every region is exhausted the caller gets a terminal
// error naming them all.
func (d *Dispatcher) Send(ctx context.Context, persona string, history []types.Message, input string) (*bedrock.Result, error) {
	if len(d.callers) == 0 {
		return nil, errors.NewInternalError("no regions configured")
	}

	messages := buildMessages(persona, history, input)
	n := int64(len(d.callers))

	for attempt := int64(0); attempt < n; attempt++ {
		// Re-read the cursor each attempt; concurrent requests move it.
		idx := d.cursor.Load()
		caller := d.callers[idx]
		region := caller.Region()

		start := time.Now()
		result, err := caller.Converse(ctx, messages)
		elapsed := time.Since(start).Seconds()

		if err == nil {
			metrics.RecordAttempt(region, metrics.OutcomeSuccess, elapsed)
			d.logger.Debug("converse succeeded",
				"region", region,
				"input_tokens", result.InputTokens,
				"output_tokens", result.OutputTokens,
				"stop_reason", result.StopReason,
			)
			return result, nil
		}

		chatErr, ok := err.(*errors.ChatError)
		if !ok || !chatErr.Retryable {
			metrics.RecordAttempt(region, outcomeFor(err), elapsed)
			return nil, err
		}

		// Throttled or access denied: rotate to the next region so this
		// request and the ones behind it start elsewhere.
		d.cursor.Store((idx + 1) % n)
		metrics.RecordAttempt(region, outcomeFor(err), elapsed)
		d.logger.Warn("region unavailable, advancing",
			"region", region,
			"error_type", chatErr.Type,
			"next_region", d.CurrentRegion(),
		)
	}

	metrics.RegionsExhausted.Inc()
	return nil, errors.NewRegionsExhaustedError(d.Regions())
}

// buildMessages assembles the Converse sequence: the persona styled as a
// leading user turn, the trailing window of stored history, then the new
// input.
func buildMessages(persona string, history []types.Message, input string) []bedrock.Message {
	messages := make([]bedrock.Message, 0, len(history)+2)

	if persona != "" {
		messages = append(messages, bedrock.NewTextMessage(types.RoleUser, "System: "+persona))
	}

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, m := range history[start:] {
		messages = append(messages, bedrock.NewTextMessage(m.Role, m.Content))
	}

	return append(messages, bedrock.NewTextMessage(types.RoleUser, input))
}

func outcomeFor(err error) string {
	chatErr, ok := err.(*errors.ChatError)
	if !ok {
		return metrics.OutcomeError
	}
	switch chatErr.Type {
	case errors.TypeThrottled:
		return metrics.OutcomeThrottled
	case errors.TypeAccessDenied:
		return metrics.OutcomeAccessDenied
	case errors.TypeInvalidRequest:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
