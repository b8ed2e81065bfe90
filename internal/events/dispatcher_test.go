package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingListener(log *[]string, label string) Listener {
	return ListenerFunc(func(ctx context.Context, event Envelope) error {
		*log = append(*log, label)
		return nil
	})
}

func TestDispatchPriorityOrder(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Listen("booking.created", recordingListener(&calls, "low"), "ext-a", "", 5)
	d.Listen("booking.created", recordingListener(&calls, "high"), "ext-b", "", 10)

	require.NoError(t, d.Dispatch(context.Background(), "booking.created", nil, nil))
	assert.Equal(t, []string{"high", "low"}, calls)
}

func TestDispatchEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Listen("booking.created", recordingListener(&calls, "first"), "ext-a", "", 0)
	d.Listen("booking.created", recordingListener(&calls, "second"), "ext-a", "", 0)
	d.Listen("booking.created", recordingListener(&calls, "third"), "ext-b", "", 0)

	require.NoError(t, d.Dispatch(context.Background(), "booking.created", nil, nil))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestDispatchEnvelopeCarriesPayloadAndMetadata(t *testing.T) {
	d := NewDispatcher()
	var got Envelope

	d.Listen("invoice.paid", ListenerFunc(func(ctx context.Context, event Envelope) error {
		got = event
		return nil
	}), "billing", "", 0)

	payload := map[string]any{"amount": 4200}
	meta := map[string]any{"tenant": "org-1"}
	require.NoError(t, d.Dispatch(context.Background(), "invoice.paid", payload, meta))

	assert.Equal(t, "invoice.paid", got.Name)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, meta, got.Metadata)
}

func TestDispatchPropagatesListenerError(t *testing.T) {
	d := NewDispatcher()
	boom := fmt.Errorf("listener exploded")
	var reached bool

	d.Listen("x", ListenerFunc(func(ctx context.Context, event Envelope) error {
		return boom
	}), "ext-a", "", 10)
	d.Listen("x", ListenerFunc(func(ctx context.Context, event Envelope) error {
		reached = true
		return nil
	}), "ext-a", "", 0)

	err := d.Dispatch(context.Background(), "x", nil, nil)
	require.ErrorIs(t, err, boom)
	assert.False(t, reached, "listeners after a failure must not run")
}

func TestRemoveListenersTenantScoped(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Listen("x", recordingListener(&calls, "global"), "ext-a", "", 0)
	d.Listen("x", recordingListener(&calls, "org-1"), "ext-a", "org-1", 0)
	d.Listen("x", recordingListener(&calls, "org-2"), "ext-a", "org-2", 0)
	d.Listen("x", recordingListener(&calls, "other-ext"), "ext-b", "org-1", 0)

	removed := d.RemoveListeners("ext-a", "org-1")
	assert.Equal(t, 1, removed)

	require.NoError(t, d.Dispatch(context.Background(), "x", nil, nil))
	assert.Equal(t, []string{"global", "org-2", "other-ext"}, calls)
}

func TestRemoveListenersAllForExtension(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Listen("x", recordingListener(&calls, "global"), "ext-a", "", 0)
	d.Listen("x", recordingListener(&calls, "org-1"), "ext-a", "org-1", 0)
	d.Listen("x", recordingListener(&calls, "keep"), "ext-b", "", 0)

	removed := d.RemoveListeners("ext-a", "")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, d.ListenerCount("x"))
}

func TestReentrantDispatch(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Listen("outer", ListenerFunc(func(ctx context.Context, event Envelope) error {
		calls = append(calls, "outer")
		return d.Dispatch(ctx, "inner", nil, nil)
	}), "ext-a", "", 0)
	d.Listen("inner", recordingListener(&calls, "inner"), "ext-a", "", 0)

	require.NoError(t, d.Dispatch(context.Background(), "outer", nil, nil))
	assert.Equal(t, []string{"outer", "inner"}, calls)
}
