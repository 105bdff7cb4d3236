// Package gobwas_ws_conn implements the Conn interface from
// https://github.com/SirGFM/go-chat-hub over a WebSocket connection from
// https://github.com/gobwas/ws.
//
// Differently from gorilla-ws-conn, connections work directly on top of
// the `net.Conn`, so they may be used both from an HTTP handler (through
// `Upgrade`) and from a raw TCP listener (through `Accept`).
package gobwas_ws_conn

import (
    "context"
    "errors"
    "io"
    "log"
    "net"
    "net/http"
    "sync"
    "sync/atomic"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/gobwas/ws"
    "github.com/gobwas/ws/wsutil"
)

// defaultPing is sent on ping messages as the application data.
const defaultPing = "go_chat_hub says hi"

// module is the string used when logging messages from this package.
const module = "go_chat_hub/gobwas-ws-conn"

// Conf configures a WebSocket connection.
type Conf struct {
    // Deadline for each write. Zero disables it.
    WriteTimeout time.Duration

    // Logger for failures. May be nil.
    Logger *log.Logger
}

// wsConn wrap a gobwas/ws connection into a gochat.Conn.
type wsConn struct {
    // The underlying connection.
    conn net.Conn

    // Where frames are read from. Usually `conn`, but may be a buffered
    // reader left over from the handshake.
    r io.Reader

    // Which side of the connection this is.
    state ws.State

    // The connection's configuration.
    conf Conf

    // pending holds messages read but not yet handled.
    pending []wsutil.Message

    // sendMutex synchronizes write operations on `conn`.
    sendMutex sync.Mutex

    // Whether the connection is currently active.
    active uint32
}

// isActive check if the connection is still active.
func (c *wsConn) isActive() bool {
    return atomic.LoadUint32(&c.active) == 1
}

// logf report a failure, if a logger was configured.
func (c *wsConn) logf(format string, args ...interface{}) {
    if c.conf.Logger != nil {
        c.conf.Logger.Printf("[ERROR] " + module + ": " + format, args...)
    }
}

// write a frame, properly synchronizing the connection.
func (c *wsConn) write(op ws.OpCode, data []byte) error {
    c.sendMutex.Lock()
    defer c.sendMutex.Unlock()

    if !c.isActive() {
        return gochat.ConnEOF
    }
    return c.writeLocked(op, data)
}

// writeLocked write a frame. `sendMutex` must be held by the caller.
func (c *wsConn) writeLocked(op ws.OpCode, data []byte) error {
    if c.conf.WriteTimeout > 0 {
        c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout))
    }
    return wsutil.WriteMessage(c.conn, c.state, op, data)
}

// Close the connection, trying to let the remote endpoint know about it.
func (c *wsConn) Close() error {
    if !atomic.CompareAndSwapUint32(&c.active, 1, 0) {
        return nil
    }

    c.sendMutex.Lock()
    defer c.sendMutex.Unlock()

    body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
    c.writeLocked(ws.OpClose, body)
    return c.conn.Close()
}

// Recv blocks until a new text message was received. Control frames are
// handled along the way.
func (c *wsConn) Recv() (string, error) {
    for c.isActive() {
        if len(c.pending) == 0 {
            msgs, err := wsutil.ReadMessage(c.r, c.state, c.pending[:0])
            if err != nil {
                if c.isActive() && err != io.EOF && !errors.Is(err, net.ErrClosed) {
                    c.logf("Couldn't read from the connection.\n\terror: %+v", err)
                }
                c.Close()
                return "", gochat.ConnEOF
            }
            c.pending = msgs
        }

        msg := c.pending[0]
        c.pending = c.pending[1:]

        switch msg.OpCode {
        case ws.OpClose:
            c.Close()
            return "", gochat.ConnEOF
        case ws.OpPing:
            err := c.write(ws.OpPong, msg.Payload)
            if err != nil && err != gochat.ConnEOF {
                c.logf("Couldn't pong.\n\terror: %+v", err)
            }
        case ws.OpText:
            return string(msg.Payload), nil
        }
    }

    return "", gochat.ConnEOF
}

// SendStr send `msg`, previously formatted by the caller.
//
// An empty message is sent as a ping, to check if the remote endpoint is
// alive.
func (c *wsConn) SendStr(msg string) error {
    if len(msg) == 0 {
        return c.write(ws.OpPing, []byte(defaultPing))
    }
    return c.write(ws.OpText, []byte(msg))
}

// wrap an already upgraded connection.
func wrap(conn net.Conn, r io.Reader, state ws.State, conf Conf) gochat.Conn {
    if r == nil {
        r = conn
    }

    return &wsConn {
        conn: conn,
        r: r,
        state: state,
        conf: conf,
        active: 1,
    }
}

// Upgrade a HTTP request to a Chat Connection.
func Upgrade(conf Conf, w http.ResponseWriter, req *http.Request) (gochat.Conn, error) {
    conn, rw, _, err := ws.UpgradeHTTP(req, w)
    if err != nil {
        return nil, err
    }

    var r io.Reader
    if rw != nil {
        r = rw.Reader
    }
    return wrap(conn, r, ws.StateServerSide, conf), nil
}

// Accept the WebSocket handshake on a raw connection, as accepted from a
// `net.Listener`. `upgrader` may be used to inspect the request.
//
// On error, `conn` is left open.
func Accept(conf Conf, upgrader ws.Upgrader, conn net.Conn) (gochat.Conn, error) {
    _, err := upgrader.Upgrade(conn)
    if err != nil {
        return nil, err
    }

    return wrap(conn, nil, ws.StateServerSide, conf), nil
}

// Dial connect to the WebSocket server at `url`, as a client.
func Dial(ctx context.Context, conf Conf, url string) (gochat.Conn, error) {
    conn, br, _, err := ws.Dial(ctx, url)
    if err != nil {
        return nil, err
    }

    var r io.Reader
    if br != nil {
        r = br
    }
    return wrap(conn, r, ws.StateClientSide, conf), nil
}
