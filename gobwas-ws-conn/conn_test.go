package gobwas_ws_conn

import (
    "context"
    "net"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/gobwas/ws"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// echo answer every message, in upper case, until the connection closes.
func echo(c gochat.Conn) {
    defer c.Close()
    for {
        msg, err := c.Recv()
        if err != nil {
            return
        }
        c.SendStr(strings.ToUpper(msg))
    }
}

func checkEcho(t *testing.T, client gochat.Conn) {
    t.Helper()

    for _, msg := range []string {"hello", "", "MESSAGE|alice||hi|now"} {
        require.NoError(t, client.SendStr(msg))
        if msg == "" {
            // Pings are answered transparently.
            continue
        }

        got, err := client.Recv()
        require.NoError(t, err)
        assert.Equal(t, strings.ToUpper(msg), got)
    }
}

func TestUpgradeHTTP(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
        conn, err := Upgrade(Conf{}, w, req)
        if err != nil {
            return
        }
        echo(conn)
    }))
    defer srv.Close()

    url := "ws" + strings.TrimPrefix(srv.URL, "http")
    client, err := Dial(context.Background(), Conf {WriteTimeout: time.Second}, url)
    require.NoError(t, err)
    defer client.Close()

    checkEcho(t, client)
}

func TestAcceptRaw(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    defer ln.Close()

    var path string
    result := make(chan error, 1)
    go func() {
        raw, err := ln.Accept()
        if err != nil {
            result <- err
            return
        }

        upgrader := ws.Upgrader {
            OnRequest: func(uri []byte) error {
                path = string(uri)
                return nil
            },
        }
        conn, err := Accept(Conf{}, upgrader, raw)
        if err != nil {
            raw.Close()
            result <- err
            return
        }

        _, err = conn.Recv()
        result <- err
    }()

    client, err := Dial(context.Background(), Conf{}, "ws://" + ln.Addr().String() + "/chat-raw?token=abc")
    require.NoError(t, err)

    require.NoError(t, client.Close())
    require.NoError(t, client.Close())
    assert.Equal(t, gochat.ConnEOF, client.SendStr("late"))

    select {
    case err := <-result:
        assert.Equal(t, gochat.ConnEOF, err)
    case <-time.After(time.Second):
        t.Fatal("The server didn't notice the closed connection")
    }
    assert.Equal(t, "/chat-raw?token=abc", path)
}

func TestRejectedHandshake(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    defer ln.Close()

    go func() {
        raw, err := ln.Accept()
        if err != nil {
            return
        }
        defer raw.Close()

        upgrader := ws.Upgrader {
            OnRequest: func(uri []byte) error {
                return ws.RejectConnectionError(
                    ws.RejectionStatus(http.StatusUnauthorized),
                    ws.RejectionReason("invalid token"),
                )
            },
        }
        Accept(Conf{}, upgrader, raw)
    }()

    _, err = Dial(context.Background(), Conf{}, "ws://" + ln.Addr().String() + "/chat-raw")
    assert.Error(t, err)
}
