// Package tcp_conn implements the Conn interface from
// https://github.com/SirGFM/go-chat-hub over a line oriented TCP
// connection, optionally encrypted with TLS.
//
// Each message is a single line terminated by '\n'. The first line sent by
// the client must be the token it got when logging in. After that, every
// line is a chat message, except for "QUIT", which closes the connection.
// The server sends an empty line to check whether the client is alive.
package tcp_conn

import (
    "bufio"
    "context"
    "crypto/tls"
    "errors"
    "io"
    "log"
    "net"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
)

// module is the string used when logging messages from this package.
const module = "go_chat_hub/tcp-conn"

// quitCommand closes the connection when sent by the client.
const quitCommand = "QUIT"

// ErrNoToken is returned when the client doesn't send a token.
var ErrNoToken = errors.New("tcp-conn: missing token")

// Conf configures a line connection.
type Conf struct {
    // How long the client has to send its token. Zero disables it.
    HandshakeTimeout time.Duration

    // Deadline for each write. Zero disables it.
    WriteTimeout time.Duration

    // Longest line accepted from the remote endpoint.
    MaxLineSize int

    // Logger for failures. May be nil.
    Logger *log.Logger
}

// DefaultConf retrieve the configuration used by the server.
func DefaultConf() Conf {
    return Conf {
        HandshakeTimeout: time.Second * 10,
        WriteTimeout: time.Second * 10,
        MaxLineSize: 4096,
    }
}

// lineConn wrap a net.Conn into a gochat.Conn.
type lineConn struct {
    // The underlying connection.
    conn net.Conn

    // Reads lines from `conn`.
    scanner *bufio.Scanner

    // The connection's configuration.
    conf Conf

    // sendMutex synchronizes write operations on `conn`.
    sendMutex sync.Mutex

    // Whether the connection is currently active.
    active uint32
}

// isActive check if the connection is still active.
func (c *lineConn) isActive() bool {
    return atomic.LoadUint32(&c.active) == 1
}

// Close the connection.
func (c *lineConn) Close() error {
    if atomic.CompareAndSwapUint32(&c.active, 1, 0) {
        return c.conn.Close()
    }
    return nil
}

// readLine read the next line, without its line break.
func (c *lineConn) readLine() (string, error) {
    if !c.scanner.Scan() {
        err := c.scanner.Err()
        if err == nil {
            err = io.EOF
        }
        return "", err
    }
    return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
}

// Recv blocks until a new line was received.
func (c *lineConn) Recv() (string, error) {
    if !c.isActive() {
        return "", gochat.ConnEOF
    }

    line, err := c.readLine()
    if err != nil {
        if c.isActive() && err != io.EOF && !errors.Is(err, net.ErrClosed) &&
                c.conf.Logger != nil {
            c.conf.Logger.Printf("[ERROR] %s: Couldn't read from the connection.\n\terror: %+v",
                    module, err)
        }
        c.Close()
        return "", gochat.ConnEOF
    }

    if strings.EqualFold(strings.TrimSpace(line), quitCommand) {
        c.Close()
        return "", gochat.ConnEOF
    }
    return line, nil
}

// SendStr send `msg` as a single line. An empty message is sent as an
// empty line, to check if the remote endpoint is alive.
func (c *lineConn) SendStr(msg string) error {
    c.sendMutex.Lock()
    defer c.sendMutex.Unlock()

    if !c.isActive() {
        return gochat.ConnEOF
    }

    if c.conf.WriteTimeout > 0 {
        c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout))
    }
    _, err := io.WriteString(c.conn, msg + "\n")
    return err
}

// wrap `conn` into a gochat.Conn.
func wrap(conn net.Conn, conf Conf) *lineConn {
    maxLine := conf.MaxLineSize
    if maxLine <= 0 {
        maxLine = DefaultConf().MaxLineSize
    }

    // The initial buffer may not exceed the limit, or it would never be
    // enforced.
    scanner := bufio.NewScanner(conn)
    scanner.Buffer(make([]byte, 0, min(512, maxLine)), maxLine)

    return &lineConn {
        conn: conn,
        scanner: scanner,
        conf: conf,
        active: 1,
    }
}

// Handshake read the token sent by a newly accepted client.
//
// On error, `conn` is left open.
func Handshake(conf Conf, conn net.Conn) (string, gochat.Conn, error) {
    c := wrap(conn, conf)

    if conf.HandshakeTimeout > 0 {
        conn.SetReadDeadline(time.Now().Add(conf.HandshakeTimeout))
    }
    token, err := c.readLine()
    if err != nil {
        return "", nil, err
    }
    conn.SetReadDeadline(time.Time{})

    token = strings.TrimSpace(token)
    if len(token) == 0 {
        return "", nil, ErrNoToken
    }

    return token, c, nil
}

// Listen on `addr`, encrypting every connection if `tlsConf` isn't nil.
func Listen(addr string, tlsConf *tls.Config) (net.Listener, error) {
    if tlsConf != nil {
        return tls.Listen("tcp", addr, tlsConf)
    }
    return net.Listen("tcp", addr)
}

// Serve accept connections from `ln` until it's closed, handing each one
// (after reading its token) to `handle` in a new goroutine.
//
// Connections are closed once `handle` returns.
func Serve(ln net.Listener, conf Conf, handle func(token string, conn gochat.Conn)) error {
    for {
        raw, err := ln.Accept()
        if err != nil {
            if errors.Is(err, net.ErrClosed) {
                return nil
            }
            return err
        }

        go func() {
            token, conn, err := Handshake(conf, raw)
            if err != nil {
                if conf.Logger != nil {
                    conf.Logger.Printf("[ERROR] %s: Handshake failed.\n\tremote: %s\n\terror: %+v",
                            module, raw.RemoteAddr(), err)
                }
                raw.Close()
                return
            }

            defer conn.Close()
            handle(token, conn)
        }()
    }
}

// Dial connect to the chat server at `addr`, identifying the connection
// with `token`. TLS is used if `tlsConf` isn't nil.
func Dial(ctx context.Context, conf Conf, addr string, tlsConf *tls.Config, token string) (gochat.Conn, error) {
    var conn net.Conn
    var err error

    if tlsConf != nil {
        d := tls.Dialer {Config: tlsConf}
        conn, err = d.DialContext(ctx, "tcp", addr)
    } else {
        var d net.Dialer
        conn, err = d.DialContext(ctx, "tcp", addr)
    }
    if err != nil {
        return nil, err
    }

    c := wrap(conn, conf)
    err = c.SendStr(token)
    if err != nil {
        conn.Close()
        return nil, err
    }

    return c, nil
}

// Quit tell the server that the client is leaving, and close the
// connection.
func Quit(conn gochat.Conn) error {
    conn.SendStr(quitCommand)
    return conn.Close()
}
