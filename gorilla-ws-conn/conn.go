// Package gorilla_ws_conn implements the Conn interface from
// https://github.com/SirGFM/go-chat-hub over a WebSocket connection from
// https://github.com/gorilla/websocket.
package gorilla_ws_conn

import (
    "log"
    "net/http"
    "sync"
    "sync/atomic"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    gows "github.com/gorilla/websocket"
)

// defaultPing is sent on ping messages as the application data.
const defaultPing = "go_chat_hub says hi"

// module is the string used when logging messages from this package.
const module = "go_chat_hub/gorilla-ws-conn"

// Conf configures a WebSocket connection.
type Conf struct {
    // Upgrader used to turn HTTP requests into WebSocket connections.
    Upgrader gows.Upgrader

    // How long the connection waits, without receiving anything, until
    // pinging the remote endpoint. If it times out once again, the
    // connection is closed.
    IdleTimeout time.Duration

    // Deadline for each write. Zero disables it.
    WriteTimeout time.Duration

    // Largest message accepted from the remote endpoint. Zero disables
    // the limit.
    ReadLimit int64

    // Logger for failures. May be nil.
    Logger *log.Logger
}

// DefaultConf retrieve the configuration used by the server.
func DefaultConf() Conf {
    return Conf {
        Upgrader: gows.Upgrader {
            ReadBufferSize: 1024,
            WriteBufferSize: 1024,
        },
        IdleTimeout: time.Minute,
        WriteTimeout: time.Second * 10,
        ReadLimit: 4096,
    }
}

// wsConn wrap a gorilla/ws connection into a gochat.Conn.
type wsConn struct {
    // The gorilla WebSocket connection.
    conn *gows.Conn

    // The connection's configuration.
    conf Conf

    // ticker generates a message on a channel if `IdleTimeout` elapsed
    // without receiving any message.
    ticker *time.Ticker

    // missed counts the number of consecutive timeouts that happened.
    missed uint32

    // sendMutex synchronizes write operations on `conn`.
    sendMutex sync.Mutex

    // Whether the connection is currently active.
    active uint32

    // stop signals, by getting closed, that the connection was closed.
    stop chan struct{}
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

// Close the connection, trying to let the remote endpoint know about it.
func (c *wsConn) Close() error {
    if !atomic.CompareAndSwapUint32(&c.active, 1, 0) {
        return nil
    }

    c.ticker.Stop()
    close(c.stop)

    c.sendMutex.Lock()
    defer c.sendMutex.Unlock()

    deadline := time.Now().Add(time.Second)
    c.conn.WriteControl(gows.CloseMessage,
            gows.FormatCloseMessage(gows.CloseNormalClosure, ""), deadline)
    return c.conn.Close()
}

// resetTimeout reset the last timeout.
//
// This must be called whenever this connections receives any message from
// its remote endpoint.
func (c *wsConn) resetTimeout() {
    atomic.StoreUint32(&c.missed, 0)
    if c.isActive() {
        c.ticker.Reset(c.conf.IdleTimeout)
    }
}

// Recv blocks until a new text message was received.
func (c *wsConn) Recv() (string, error) {
    for c.isActive() {
        typ, txt, err := c.conn.ReadMessage()
        if err != nil {
            if c.isActive() && !gows.IsCloseError(err, gows.CloseNormalClosure,
                    gows.CloseGoingAway, gows.CloseNoStatusReceived) {
                c.logf("Couldn't read from the connection.\n\terror: %+v", err)
            }
            c.Close()
            return "", gochat.ConnEOF
        }

        c.resetTimeout()
        if typ == gows.TextMessage {
            return string(txt), nil
        }
    }

    return "", gochat.ConnEOF
}

// write a message, properly synchronizing the connection.
func (c *wsConn) write(mType int, data []byte) error {
    c.sendMutex.Lock()
    defer c.sendMutex.Unlock()

    if !c.isActive() {
        return gochat.ConnEOF
    }

    var deadline time.Time
    if c.conf.WriteTimeout > 0 {
        deadline = time.Now().Add(c.conf.WriteTimeout)
    }

    if mType == gows.PingMessage || mType == gows.PongMessage {
        return c.conn.WriteControl(mType, data, deadline)
    }

    c.conn.SetWriteDeadline(deadline)
    return c.conn.WriteMessage(mType, data)
}

// SendStr send `msg`, previously formatted by the caller.
//
// An empty message is sent as a ping, to check if the remote endpoint is
// alive.
func (c *wsConn) SendStr(msg string) error {
    if len(msg) == 0 {
        return c.write(gows.PingMessage, []byte(defaultPing))
    }
    return c.write(gows.TextMessage, []byte(msg))
}

// watchIdle ping the remote endpoint when it goes quiet, and close the
// connection if it stays quiet.
func (c *wsConn) watchIdle() {
    for {
        select {
        case <-c.ticker.C:
            if atomic.CompareAndSwapUint32(&c.missed, 0, 1) {
                err := c.write(gows.PingMessage, []byte(defaultPing))
                if err != nil {
                    c.logf("Couldn't ping on timeout.\n\terror: %+v", err)
                    c.Close()
                    return
                }
            } else {
                c.Close()
                return
            }
        case <-c.stop:
            return
        }
    }
}

// ping answer a ping from the remote endpoint.
//
// The default handler writes the pong directly, which could be concurrent
// to other writes.
func (c *wsConn) ping(appData string) error {
    c.resetTimeout()

    err := c.write(gows.PongMessage, []byte(appData))
    if err == gochat.ConnEOF {
        return nil
    }
    return err
}

// pong handle received pong messages, requested or not.
func (c *wsConn) pong(appData string) error {
    c.resetTimeout()
    return nil
}

// Wrap an already established WebSocket connection, from either side.
func Wrap(conn *gows.Conn, conf Conf) gochat.Conn {
    if conf.IdleTimeout <= 0 {
        conf.IdleTimeout = DefaultConf().IdleTimeout
    }
    if conf.ReadLimit > 0 {
        conn.SetReadLimit(conf.ReadLimit)
    }

    c := &wsConn {
        conn: conn,
        conf: conf,
        ticker: time.NewTicker(conf.IdleTimeout),
        active: 1,
        stop: make(chan struct{}),
    }
    conn.SetPingHandler(c.ping)
    conn.SetPongHandler(c.pong)
    go c.watchIdle()

    return c
}

// Upgrade a HTTP connection to a Chat Connection.
//
// Gorilla/ws's documentation specifies that if `SetReadDeadline` is set
// and a read times out, the websocket becomes corrupt. Instead, a
// goroutine watches for idle connections, pinging them once and closing
// them if they remain idle.
func Upgrade(conf Conf, w http.ResponseWriter, req *http.Request) (gochat.Conn, error) {
    conn, err := conf.Upgrader.Upgrade(w, req, nil)
    if err != nil {
        return nil, err
    }

    return Wrap(conn, conf), nil
}
