package main

import (
    "bytes"
    "context"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// fakeServer mimic the chat server's replies.
func fakeServer(t *testing.T) *httptest.Server {
    t.Helper()

    var polls int32
    msg := gochat.NewMessage(gochat.KindChat, "hi there", "alice", "")

    mux := http.NewServeMux()
    mux.HandleFunc("/register", func(w http.ResponseWriter, req *http.Request) {
        if req.PostFormValue("username") == "taken" {
            w.WriteHeader(http.StatusBadRequest)
            w.Write([]byte("ERROR|user already exists"))
            return
        }
        w.Write([]byte("OK|Registration successful. Please log in."))
    })
    mux.HandleFunc("/login", func(w http.ResponseWriter, req *http.Request) {
        w.Write([]byte("OK|tk123|8889|Login successful. Welcome " + req.PostFormValue("username") + "!"))
    })
    mux.HandleFunc("/message", func(w http.ResponseWriter, req *http.Request) {
        if req.PostFormValue("token") != "tk123" {
            w.WriteHeader(http.StatusUnauthorized)
            w.Write([]byte("ERROR|Invalid token"))
            return
        }
        w.Write([]byte("OK"))
    })
    mux.HandleFunc("/poll", func(w http.ResponseWriter, req *http.Request) {
        switch atomic.AddInt32(&polls, 1) {
        case 1:
            w.WriteHeader(http.StatusNoContent)
        case 2:
            w.Write([]byte(msg.Encode()))
        default:
            w.WriteHeader(http.StatusUnauthorized)
            w.Write([]byte("ERROR|Invalid token"))
        }
    })

    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

func TestClientSession(t *testing.T) {
    srv := fakeServer(t)
    ctx := context.Background()

    c, err := newClient(srv.URL, srv.Client())
    require.NoError(t, err)

    reply, err := c.register(ctx, "bob", "secret1")
    require.NoError(t, err)
    assert.Equal(t, "Registration successful. Please log in.", reply)

    _, err = c.register(ctx, "taken", "secret1")
    require.Error(t, err)
    var rerr *replyError
    require.ErrorAs(t, err, &rerr)
    assert.Equal(t, http.StatusBadRequest, rerr.status)
    assert.Equal(t, "user already exists", rerr.reason)

    assert.Error(t, c.send(ctx, "too early"))

    reply, err = c.login(ctx, "bob", "secret1")
    require.NoError(t, err)
    assert.Equal(t, "Login successful. Welcome bob!", reply)
    assert.Equal(t, "tk123", c.token)
    assert.Equal(t, 8889, c.tcpPort)

    require.NoError(t, c.send(ctx, "hello"))

    _, err = c.poll(ctx)
    assert.Equal(t, errPollAgain, err)
    msg, err := c.poll(ctx)
    require.NoError(t, err)
    assert.Equal(t, "hi there", msg.Body)

    // The poll loop prints messages until the token is refused.
    var out bytes.Buffer
    c2, err := newClient(srv.URL, srv.Client())
    require.NoError(t, err)
    c2.token = "tk123"
    tctx, cancel := context.WithTimeout(ctx, time.Second * 5)
    defer cancel()
    err = receivePoll(tctx, c2, &out)
    assert.ErrorAs(t, err, &rerr)
}

func TestNewClientRejectsScheme(t *testing.T) {
    _, err := newClient("ftp://localhost", http.DefaultClient)
    assert.Error(t, err)
}

func TestRender(t *testing.T) {
    list := gochat.NewMessage(gochat.KindUserList, "alice,bob", gochat.SystemSender, "")
    assert.Equal(t, "Online: alice, bob", render(list))

    errMsg := gochat.NewMessage(gochat.KindError, "User 'x' not found.", gochat.SystemSender, "")
    assert.Equal(t, "Error: User 'x' not found.", render(errMsg))
}
