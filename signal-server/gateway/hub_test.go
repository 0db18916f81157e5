package gateway

import (
	"encoding/json"
	"testing"

	"github.com/beamgate/beamgate/signal-server/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_EmitDeliversToEndpoint(t *testing.T) {
	h := NewHub()
	c := &client{id: "ep-1", send: make(chan []byte, 1)}
	h.add(c)

	h.Emit("ep-1", signaling.EventReceiverJoined, &signaling.ReceiverJoined{ReceiverID: "ep-2"})

	require.Equal(t, 1, len(c.send))
	var f frame
	require.NoError(t, json.Unmarshal(<-c.send, &f))
	assert.Equal(t, signaling.EventReceiverJoined, f.Event)
	var payload signaling.ReceiverJoined
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "ep-2", payload.ReceiverID)
}

func TestHub_EmitUnknownEndpointIsDropped(t *testing.T) {
	h := NewHub()
	// Must neither panic nor block.
	h.Emit("nobody", signaling.EventError, &signaling.ErrorEvent{Message: "hello"})
}

func TestHub_EmitSlowConsumerDropsEvent(t *testing.T) {
	h := NewHub()
	c := &client{id: "ep-1", send: make(chan []byte, 1)}
	h.add(c)

	h.Emit("ep-1", signaling.EventTransferCancelled, &signaling.TransferCancelled{Reason: "first"})
	h.Emit("ep-1", signaling.EventTransferCancelled, &signaling.TransferCancelled{Reason: "second"})

	require.Equal(t, 1, len(c.send))
	var f frame
	require.NoError(t, json.Unmarshal(<-c.send, &f))
	var payload signaling.TransferCancelled
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "first", payload.Reason, "the queued event survives, the overflow is dropped")
}

func TestHub_AddRemoveSnapshot(t *testing.T) {
	h := NewHub()
	assert.Equal(t, 0, h.NumClients())

	h.add(&client{id: "a", send: make(chan []byte, 1)})
	h.add(&client{id: "b", send: make(chan []byte, 1)})
	assert.Equal(t, 2, h.NumClients())
	assert.Equal(t, 2, len(h.snapshot()))

	h.remove("a")
	assert.Equal(t, 1, h.NumClients())
	_, ok := h.get("a")
	assert.False(t, ok)
	_, ok = h.get("b")
	assert.True(t, ok)
}
