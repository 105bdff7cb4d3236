package go_chat_hub

import (
    "sync/atomic"
    "testing"
    "time"
)

// A simple mock connection, used to test the chat hub without an actual
// network connection.
//
// Although the hub may use the `Conn` API to use this connection, tests
// must access this structure directly to simulate interactions.
//
// To simulate a line arriving from the client's remote endpoint, push it
// into `fromClient`:
//
//     c := newMockConn()
//     /* Connect the user. */
//     c.fromClient <- "the message"
//
// On the other hand, to simulate a client receiving a message, pop a frame
// from `fromServer`. Be sure to use a timeout, to avoid causing tests to
// hang:
//
//     msg := expectMessage(t, c)
type mockConn struct {
    // fromClient simulates incoming lines (from the hub's perspective)
    // from the client's remote endpoint. Therefore, tests must push
    // directly to this channel.
    fromClient chan string

    // fromServer simulates outgoing frames (from the hub's perspective) to
    // the client's remote endpoint. Therefore, tests must read directly
    // from this channel.
    fromServer chan string

    // stop signals, by getting closed, that the connection got closed.
    stop chan struct{}

    // Whether the connection is currently running.
    running uint32
}

// isClosed check if the connection is closed.
func (mc *mockConn) isClosed() bool {
    return atomic.LoadUint32(&mc.running) == 0
}

// Close the connection.
//
// This can safely be called multiple times without any issue.
func (mc *mockConn) Close() error {
    if atomic.CompareAndSwapUint32(&mc.running, 1, 0) {
        close(mc.stop)
    }
    return nil
}

// Recv blocks until a new line was received.
func (mc *mockConn) Recv() (string, error) {
    select {
    case msg := <-mc.fromClient:
        return msg, nil
    case <-mc.stop:
        return "", ConnEOF
    }
}

// SendStr send `msg`, previously formatted by the caller. Keep-alive
// messages are accepted and discarded.
func (mc *mockConn) SendStr(msg string) error {
    if mc.isClosed() {
        return ConnEOF
    } else if len(msg) == 0 {
        return nil
    }

    mc.fromServer <- msg
    return nil
}

// TestSend send a line from the client to the hub.
func (mc *mockConn) TestSend(msg string) error {
    select {
    case mc.fromClient <- msg:
        return nil
    case <-mc.stop:
        return ConnEOF
    }
}

// TestRecv wait for `timeout` to receive a frame from the hub.
func (mc *mockConn) TestRecv(timeout time.Duration) (string, error) {
    select {
    case msg := <-mc.fromServer:
        return msg, nil
    case <-time.After(timeout):
        return "", TestTimeout
    }
}

// newMockConn create a dummy, mock connection that may be used in tests.
func newMockConn() *mockConn {
    return &mockConn {
        fromClient: make(chan string),
        fromServer: make(chan string, 256),
        stop: make(chan struct{}),
        running: 1,
    }
}

// testRecvTimeout is how long tests wait for a frame that should arrive.
const testRecvTimeout = time.Second

// expectMessage wait for the next frame sent to `c` and decode it.
func expectMessage(t *testing.T, c *mockConn) *Message {
    t.Helper()

    frame, err := c.TestRecv(testRecvTimeout)
    if err != nil {
        t.Fatalf("Didn't receive a message: %+v", err)
    }

    msg, err := DecodeMessage(frame)
    if err != nil {
        t.Fatalf("Received an invalid frame '%s': %+v", frame, err)
    }
    return msg
}

// expectKind wait for the next message of kind `kind` sent to `c`,
// skipping any other message.
func expectKind(t *testing.T, c *mockConn, kind Kind) *Message {
    t.Helper()

    for {
        msg := expectMessage(t, c)
        if msg.Kind == kind {
            return msg
        }
    }
}

// expectSilence check that nothing is sent to `c` for a while.
func expectSilence(t *testing.T, c *mockConn) {
    t.Helper()

    frame, err := c.TestRecv(time.Millisecond * 50)
    if err == nil {
        t.Fatalf("Unexpected message: '%s'", frame)
    }
}

func TestPushTransport(t *testing.T) {
    c := newMockConn()
    tr := NewPushTransport(c)

    msg := NewMessage(KindChat, "hi", "alice", "")
    if err := tr.Deliver(msg); err != nil {
        t.Fatalf("Couldn't deliver a message: %+v", err)
    }
    if got := expectMessage(t, c); got.Body != "hi" || got.From != "alice" {
        t.Errorf("Invalid message received: %+v", got)
    }

    if err := tr.CheckAlive(time.Now()); err != nil {
        t.Errorf("Open transport isn't alive: %+v", err)
    }
    expectSilence(t, c)

    tr.Close()
    tr.Close()
    if !c.isClosed() {
        t.Error("Closing the transport didn't close the connection")
    }
    if err := tr.Deliver(msg); err != ConnEOF {
        t.Errorf("Expected '%+v' after closing, but got '%+v'", ConnEOF, err)
    }
    if err := tr.CheckAlive(time.Now()); err != ConnEOF {
        t.Errorf("Expected '%+v' after closing, but got '%+v'", ConnEOF, err)
    }
}
