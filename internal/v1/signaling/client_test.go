package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp-lan/signaling/internal/v1/types"
)

func newPumpClient(h *Hub, id string, conn wsConnection) *Client {
	return &Client{
		ID:         types.ClientIdType(id),
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, sendBufferSize),
		pingPeriod: pingPeriod,
	}
}

// receiveRouted pops the next message off the hub's routing channel.
func receiveRouted(t *testing.T, h *Hub) *types.Message {
	t.Helper()
	select {
	case msg := <-h.route:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message routed")
		return nil
	}
}

// stopReadPump ends the scripted inbound stream and absorbs the pump's
// unregister signal so the goroutine can unwind.
func stopReadPump(t *testing.T, h *Hub, m *mockConn, done <-chan struct{}) {
	t.Helper()
	close(m.inbound)
	select {
	case <-h.unregister:
	case <-time.After(time.Second):
		t.Fatal("read pump never signalled unregister")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
}

func TestReadPump_OverwritesFrom(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "real-id", m)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"offer","from":"forged-id","to":"b","payload":"SDP"}`)

	msg := receiveRouted(t, h)
	assert.Equal(t, types.ClientIdType("real-id"), msg.From)
	assert.Equal(t, types.ClientIdType("b"), msg.To)

	stopReadPump(t, h, m, done)
	assert.True(t, m.isClosed())
}

func TestReadPump_MalformedFrameKeepsConnection(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{not json`)

	errMsg := receive(t, c)
	assert.Equal(t, types.MsgTypeError, errMsg.Type)
	assert.Equal(t, `"Invalid message format"`, string(errMsg.Payload))

	// The connection survives the bad frame.
	m.inbound <- []byte(`{"type":"offer","to":"b"}`)
	msg := receiveRouted(t, h)
	assert.Equal(t, types.MsgTypeOffer, msg.Type)

	stopReadPump(t, h, m, done)
}

func TestReadPump_HandshakeInitRequiresRoom(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"handshake-init"}`)

	errMsg := receive(t, c)
	assert.Equal(t, types.MsgTypeError, errMsg.Type)
	assert.Equal(t, `"Room ID required for handshake"`, string(errMsg.Payload))
	assert.Equal(t, types.RoomIdType(""), c.RoomID())

	stopReadPump(t, h, m, done)
}

func TestReadPump_HandshakeInitJoinsRoom(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"handshake-init","roomId":"42-69"}`)

	require.Eventually(t, func() bool {
		return c.RoomID() == "42-69"
	}, time.Second, 5*time.Millisecond)

	rooms, _ := h.Counts()
	assert.Equal(t, 1, rooms)

	stopReadPump(t, h, m, done)
}

func TestReadPump_UnknownType(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"bogus"}`)

	errMsg := receive(t, c)
	assert.Equal(t, types.MsgTypeError, errMsg.Type)
	assert.Equal(t, `"Unknown message type"`, string(errMsg.Payload))

	stopReadPump(t, h, m, done)
}

func TestReadPump_RelayDefaultsToCurrentRoom(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)
	h.JoinRoom(c, "42-69")

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"ice-candidate","payload":{"candidate":"x"}}`)

	msg := receiveRouted(t, h)
	assert.Equal(t, types.MsgTypeICECandidate, msg.Type)
	assert.Equal(t, types.RoomIdType("42-69"), msg.RoomID)

	stopReadPump(t, h, m, done)
}

func TestReadPump_ExplicitRoomNotOverridden(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)
	h.JoinRoom(c, "42-69")

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	m.inbound <- []byte(`{"type":"offer","roomId":"other-room"}`)

	msg := receiveRouted(t, h)
	assert.Equal(t, types.RoomIdType("other-room"), msg.RoomID)

	stopReadPump(t, h, m, done)
}

func TestWritePump_WritesQueuedFrames(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.send <- []byte(`{"type":"offer"}`)
	c.send <- []byte(`{"type":"answer"}`)

	require.Eventually(t, func() bool {
		return len(m.framesOfType(websocket.TextMessage)) == 2
	}, time.Second, 5*time.Millisecond)

	frames := m.framesOfType(websocket.TextMessage)
	assert.Equal(t, `{"type":"offer"}`, string(frames[0]))
	assert.Equal(t, `{"type":"answer"}`, string(frames[1]))

	close(c.send)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit on outbox close")
	}

	// Goodbye frame, then the socket is closed.
	assert.Len(t, m.framesOfType(websocket.CloseMessage), 1)
	assert.True(t, m.isClosed())
}

func TestWritePump_PingProbes(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	c := newPumpClient(h, "a", m)
	c.pingPeriod = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(m.framesOfType(websocket.PingMessage)) >= 2
	}, time.Second, 5*time.Millisecond)

	close(c.send)
	<-done
}

func TestWritePump_StopsOnWriteError(t *testing.T) {
	h := newTestHub()
	m := newMockConn()
	m.writeErr = errMockClosed
	c := newPumpClient(h, "a", m)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.send <- []byte(`{"type":"offer"}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit on write error")
	}
	assert.True(t, m.isClosed())
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	h := newTestHub()
	c := newPumpClient(h, "a", newMockConn())
	c.send = make(chan []byte, 1)

	assert.True(t, c.enqueueRaw([]byte("one")))
	assert.False(t, c.enqueueRaw([]byte("two")), "full outbox must drop, not block")

	assert.Equal(t, "one", string(<-c.send))
}

func TestEnqueueRaw_DropsAfterOutboxClose(t *testing.T) {
	h := newTestHub()
	c := newPumpClient(h, "a", newMockConn())

	c.closeSend()

	assert.False(t, c.enqueueRaw([]byte(`{"type":"offer"}`)))
	assert.NotPanics(t, func() { c.sendError("late frame") })
}

func TestReadPump_ErrorAfterShutdownDoesNotPanic(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(hubDone)
	}()

	m := newMockConn()
	c := newPumpClient(h, "a", m)
	h.registerClient(c)
	receive(t, c) // connected

	pumpDone := make(chan struct{})
	go func() {
		c.readPump()
		close(pumpDone)
	}()

	cancel()
	<-hubDone

	// The hub closed the outbox, but the pump is still reading. A frame that
	// provokes an in-band error must be dropped, not sent on the closed
	// channel.
	m.inbound <- []byte(`{"type":"bogus"}`)
	close(m.inbound)

	select {
	case <-pumpDone:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit after shutdown")
	}
	assert.True(t, m.isClosed())
}

func TestNewClient_ShortID(t *testing.T) {
	h := newTestHub()
	c := newClient(newMockConn(), h)

	assert.Len(t, string(c.ID), 8)
	assert.Equal(t, sendBufferSize, cap(c.send))
}
