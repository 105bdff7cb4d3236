package gorilla_ws_conn

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    gows "github.com/gorilla/websocket"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// startServer run `handle` on every upgraded connection.
func startServer(t *testing.T, conf Conf, handle func(gochat.Conn)) string {
    t.Helper()

    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
        conn, err := Upgrade(conf, w, req)
        if err != nil {
            return
        }
        handle(conn)
    }))
    t.Cleanup(srv.Close)

    return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gows.Conn {
    t.Helper()

    conn, _, err := gows.DefaultDialer.Dial(url, nil)
    require.NoError(t, err)
    t.Cleanup(func() { conn.Close() })
    return conn
}

func TestEcho(t *testing.T) {
    url := startServer(t, DefaultConf(), func(c gochat.Conn) {
        defer c.Close()
        for {
            msg, err := c.Recv()
            if err != nil {
                return
            }
            c.SendStr(strings.ToUpper(msg))
        }
    })

    client := Wrap(dial(t, url), DefaultConf())
    defer client.Close()

    for _, msg := range []string {"hello", "MESSAGE|alice||hi|now"} {
        require.NoError(t, client.SendStr(msg))
        got, err := client.Recv()
        require.NoError(t, err)
        assert.Equal(t, strings.ToUpper(msg), got)
    }

    // Keep-alives aren't seen by the other side.
    require.NoError(t, client.SendStr(""))
    require.NoError(t, client.SendStr("after ping"))
    got, err := client.Recv()
    require.NoError(t, err)
    assert.Equal(t, "AFTER PING", got)
}

func TestCloseReachesRemote(t *testing.T) {
    result := make(chan error, 1)
    url := startServer(t, DefaultConf(), func(c gochat.Conn) {
        _, err := c.Recv()
        result <- err
    })

    client := Wrap(dial(t, url), DefaultConf())
    require.NoError(t, client.Close())
    require.NoError(t, client.Close())
    assert.Equal(t, gochat.ConnEOF, client.SendStr("late"))

    select {
    case err := <-result:
        assert.Equal(t, gochat.ConnEOF, err)
    case <-time.After(time.Second):
        t.Fatal("The server didn't notice the closed connection")
    }
}

func TestIdleConnectionIsClosed(t *testing.T) {
    conf := DefaultConf()
    conf.IdleTimeout = time.Millisecond * 20

    result := make(chan error, 1)
    url := startServer(t, conf, func(c gochat.Conn) {
        _, err := c.Recv()
        result <- err
    })

    // The raw client never reads, so it never answers pings.
    dial(t, url)

    select {
    case err := <-result:
        assert.Equal(t, gochat.ConnEOF, err)
    case <-time.After(time.Second):
        t.Fatal("The idle connection wasn't closed")
    }
}

func TestReadLimit(t *testing.T) {
    conf := DefaultConf()
    conf.ReadLimit = 8

    result := make(chan error, 1)
    url := startServer(t, conf, func(c gochat.Conn) {
        _, err := c.Recv()
        result <- err
    })

    conn := dial(t, url)
    require.NoError(t, conn.WriteMessage(gows.TextMessage, []byte("way too long for the limit")))

    select {
    case err := <-result:
        assert.Equal(t, gochat.ConnEOF, err)
    case <-time.After(time.Second):
        t.Fatal("The oversized message was accepted")
    }
}
