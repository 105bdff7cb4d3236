package go_chat_hub

import (
    "io"
    "sync"
    "sync/atomic"
    "time"
)

// Conn is a generic interface for sending and receiving messages over a
// persistent connection.
type Conn interface {
    io.Closer

    // Recv blocks until a new message was received.
    Recv() (string, error)

    // SendStr send `msg`, previously formatted by the caller.
    //
    // Sending an empty string is used to check whether the remote endpoint
    // is still alive, and may be translated into a ping/pong by the
    // connection.
    SendStr(msg string) error
}

// Transport delivers messages to a single session.
//
// The hub doesn't care how the message reaches the remote endpoint, so
// long as each transport preserves the order in which messages were
// delivered to it.
type Transport interface {
    // Close the transport. After this, every call to `Deliver` fails and
    // anything blocked waiting on the transport is released.
    //
    // This can safely be called multiple times.
    io.Closer

    // Deliver the message to the session. Implementations must be safe
    // for concurrent use.
    Deliver(msg *Message) error

    // CheckAlive reports whether the remote endpoint is still reachable.
    // A non-nil error causes the session to be detached.
    CheckAlive(now time.Time) error
}

// pushTransport writes every message directly into a persistent
// connection.
type pushTransport struct {
    // The connection to the user's remote endpoint.
    conn Conn

    // sendMutex synchronizes write operations on `conn`.
    sendMutex sync.Mutex

    // Whether the transport is currently active.
    active uint32
}

// NewPushTransport create a Transport that immediately sends every
// message over `conn`.
//
// Closing the transport also closes `conn`.
func NewPushTransport(conn Conn) Transport {
    if conn == nil {
        panic("go_chat_hub/transport NewPushTransport: nil conn")
    }

    return &pushTransport {
        conn: conn,
        active: 1,
    }
}

// isActive check if the transport is still active.
func (p *pushTransport) isActive() bool {
    return atomic.LoadUint32(&p.active) == 1
}

// send `str` over the connection, properly synchronizing the connection.
func (p *pushTransport) send(str string) error {
    p.sendMutex.Lock()
    defer p.sendMutex.Unlock()

    if !p.isActive() {
        return ConnEOF
    }
    return p.conn.SendStr(str)
}

// Deliver encode the message and send it over the connection.
func (p *pushTransport) Deliver(msg *Message) error {
    return p.send(msg.Encode())
}

// CheckAlive send an empty keep-alive message over the connection.
func (p *pushTransport) CheckAlive(now time.Time) error {
    return p.send("")
}

// Close the transport and its connection.
func (p *pushTransport) Close() error {
    if atomic.CompareAndSwapUint32(&p.active, 1, 0) {
        // Wait for any in-flight write before releasing the connection.
        p.sendMutex.Lock()
        err := p.conn.Close()
        p.sendMutex.Unlock()
        return err
    }

    return nil
}
