package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densefog/parley/internal/bedrock"
	"github.com/densefog/parley/pkg/errors"
	"github.com/densefog/parley/pkg/types"
)

type fakeCaller struct {
	region string
	err    error
	text   string
	calls  int
	got    [][]bedrock.Message
}

func (f *fakeCaller) Region() string { return f.region }

func (f *fakeCaller) Converse(ctx context.Context, messages []bedrock.Message) (*bedrock.Result, error) {
	f.calls++
	f.got = append(f.got, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &bedrock.Result{Text: f.text, StopReason: "end_turn"}, nil
}

func testDispatcher(callers ...*fakeCaller) *Dispatcher {
	cs := make([]Caller, len(callers))
	for i, c := range callers {
		cs[i] = c
	}
	return New(cs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendFirstRegionSucceeds(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", text: "hello"}
	east := &fakeCaller{region: "us-east-1", text: "unused"}
	d := testDispatcher(west, east)

	result, err := d.Send(context.Background(), "be brief", nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, 1, west.calls)
	assert.Equal(t, 0, east.calls)
	assert.Equal(t, "us-west-2", d.CurrentRegion())
}

func TestSendFailsOverOnThrottle(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", err: errors.NewThrottledError("us-west-2", "slow down")}
	east := &fakeCaller{region: "us-east-1", text: "from east"}
	d := testDispatcher(west, east)

	result, err := d.Send(context.Background(), "", nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "from east", result.Text)
	assert.Equal(t, 1, west.calls)
	assert.Equal(t, 1, east.calls)
	assert.Equal(t, "us-east-1", d.CurrentRegion())
}

func TestSendFailsOverOnAccessDenied(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", err: errors.NewAccessDeniedError("us-west-2", "no model access")}
	east := &fakeCaller{region: "us-east-1", text: "from east"}
	d := testDispatcher(west, east)

	result, err := d.Send(context.Background(), "", nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "from east", result.Text)
	assert.Equal(t, "us-east-1", d.CurrentRegion())
}

func TestSendAllRegionsExhausted(t *testing.T) {
	callers := []*fakeCaller{
		{region: "us-west-2", err: errors.NewThrottledError("us-west-2", "busy")},
		{region: "us-east-1", err: errors.NewThrottledError("us-east-1", "busy")},
		{region: "us-east-2", err: errors.NewAccessDeniedError("us-east-2", "denied")},
	}
	d := testDispatcher(callers...)

	_, err := d.Send(context.Background(), "", nil, "hi")
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok)
	assert.Equal(t, errors.TypeRegionsExhausted, chatErr.Type)
	assert.Equal(t, 429, chatErr.StatusCode)
	assert.Equal(t, []string{"us-west-2", "us-east-1", "us-east-2"}, chatErr.Regions)
	for _, c := range callers {
		assert.Equal(t, 1, c.calls, "region %s", c.region)
	}
	assert.Contains(t, err.Error(), "us-west-2")
	assert.Contains(t, err.Error(), "us-east-2")
}

func TestSendInvalidRequestAbortsImmediately(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", err: errors.NewInvalidRequestError("us-west-2", "bad payload")}
	east := &fakeCaller{region: "us-east-1", text: "unused"}
	d := testDispatcher(west, east)

	_, err := d.Send(context.Background(), "", nil, "hi")
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok)
	assert.Equal(t, errors.TypeInvalidRequest, chatErr.Type)
	assert.Equal(t, 1, west.calls)
	assert.Equal(t, 0, east.calls)
	assert.Equal(t, "us-west-2", d.CurrentRegion(), "cursor must not move on a non-retryable failure")
}

func TestSendBackendErrorAbortsImmediately(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", err: errors.NewBackendError("us-west-2", "boom")}
	east := &fakeCaller{region: "us-east-1", text: "unused"}
	d := testDispatcher(west, east)

	_, err := d.Send(context.Background(), "", nil, "hi")
	require.Error(t, err)
	assert.Equal(t, 0, east.calls)
}

func TestSendCursorRestsAcrossRequests(t *testing.T) {
	west := &fakeCaller{region: "us-west-2", err: errors.NewThrottledError("us-west-2", "busy")}
	east := &fakeCaller{region: "us-east-1", text: "ok"}
	d := testDispatcher(west, east)

	_, err := d.Send(context.Background(), "", nil, "first")
	require.NoError(t, err)
	require.Equal(t, "us-east-1", d.CurrentRegion())

	_, err = d.Send(context.Background(), "", nil, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, west.calls, "a later request must start at the rested cursor, not region zero")
	assert.Equal(t, 2, east.calls)
}

func TestSendWireSequence(t *testing.T) {
	caller := &fakeCaller{region: "us-west-2", text: "ok"}
	d := testDispatcher(caller)

	now := time.Now()
	history := []types.Message{
		types.NewMessage(types.RoleUser, "earlier question", now),
		types.NewMessage(types.RoleAssistant, "earlier answer", now),
	}

	_, err := d.Send(context.Background(), "keep it short", history, "new question")
	require.NoError(t, err)
	require.Len(t, caller.got, 1)

	wire := caller.got[0]
	require.Len(t, wire, 4)
	assert.Equal(t, types.RoleUser, wire[0].Role)
	assert.Equal(t, "System: keep it short", wire[0].Content[0].Text)
	assert.Equal(t, "earlier question", wire[1].Content[0].Text)
	assert.Equal(t, types.RoleAssistant, wire[2].Role)
	assert.Equal(t, "earlier answer", wire[2].Content[0].Text)
	assert.Equal(t, types.RoleUser, wire[3].Role)
	assert.Equal(t, "new question", wire[3].Content[0].Text)
}

func TestSendHistoryWindow(t *testing.T) {
	caller := &fakeCaller{region: "us-west-2", text: "ok"}
	d := testDispatcher(caller)

	now := time.Now()
	history := make([]types.Message, 0, 25)
	for i := 0; i < 25; i++ {
		history = append(history, types.NewMessage(types.RoleUser, fmt.Sprintf("msg-%d", i), now))
	}

	_, err := d.Send(context.Background(), "persona", history, "latest")
	require.NoError(t, err)

	wire := caller.got[0]
	// persona + last 20 of history + new input
	require.Len(t, wire, 22)
	assert.Equal(t, "msg-5", wire[1].Content[0].Text)
	assert.Equal(t, "msg-24", wire[20].Content[0].Text)
	assert.Equal(t, "latest", wire[21].Content[0].Text)
}

func TestBuildMessagesWithoutPersona(t *testing.T) {
	wire := buildMessages("", nil, "hi")
	require.Len(t, wire, 1)
	assert.Equal(t, types.RoleUser, wire[0].Role)
	assert.Equal(t, "hi", wire[0].Content[0].Text)
}

func TestRegions(t *testing.T) {
	d := testDispatcher(
		&fakeCaller{region: "us-west-2"},
		&fakeCaller{region: "us-east-1"},
	)
	assert.Equal(t, []string{"us-west-2", "us-east-1"}, d.Regions())
}
