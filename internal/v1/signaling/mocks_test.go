package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/warp-lan/signaling/internal/v1/auth"
	"github.com/warp-lan/signaling/internal/v1/ratelimit"
	"github.com/warp-lan/signaling/internal/v1/types"
)

var errMockClosed = errors.New("mock connection closed")

type writtenFrame struct {
	messageType int
	data        []byte
}

// mockConn implements wsConnection with a scripted inbound stream and a
// recorded outbound stream.
type mockConn struct {
	inbound chan []byte

	mu       sync.Mutex
	written  []writtenFrame
	writeErr error
	closed   bool
	closeCh  chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-m.inbound:
		if !ok {
			return 0, nil, errMockClosed
		}
		return websocket.TextMessage, data, nil
	case <-m.closeCh:
		return 0, nil, errMockClosed
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, writtenFrame{messageType, data})
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// framesOfType returns recorded outbound frames of the given websocket type.
func (m *mockConn) framesOfType(messageType int) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, f := range m.written {
		if f.messageType == messageType {
			out = append(out, f.data)
		}
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(auth.NewOriginPolicy(nil), ratelimit.NewConnLimiter(100, time.Minute))
}

// newTestClient builds a client without a connection; hub operations only
// touch the outbox.
func newTestClient(h *Hub, id string) *Client {
	return &Client{
		ID:         types.ClientIdType(id),
		hub:        h,
		send:       make(chan []byte, sendBufferSize),
		pingPeriod: pingPeriod,
	}
}

// receive pops and decodes the next outbox message, failing after a timeout.
func receive(t *testing.T, c *Client) types.Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "outbox closed while a message was expected")
		var msg types.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message on outbox")
		return types.Message{}
	}
}

// assertNoMessage asserts the outbox is empty. Valid only after synchronous
// hub calls; nothing is in flight.
func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message on outbox: %s", data)
	default:
	}
}
