package main

import (
    "io"
    "log"
    "net/http"
    "net/http/httptest"
    "net/url"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/google/uuid"
    gows "github.com/gorilla/websocket"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type testServer struct {
    srv *server
    http *httptest.Server
    historyFile string
}

func newTestServer(t *testing.T) *testServer {
    t.Helper()

    dir := t.TempDir()
    args := defaultArgs()
    args.TCPPort = 0
    args.CredentialFile = filepath.Join(dir, "users.txt")
    args.HistoryFile = filepath.Join(dir, "history.txt")
    args.PollTimeout = Duration(time.Millisecond * 100)

    srv, err := newServer(args, log.New(io.Discard, "", 0))
    require.NoError(t, err)

    ts := &testServer {
        srv: srv,
        http: httptest.NewServer(srv),
        historyFile: args.HistoryFile,
    }
    t.Cleanup(func() {
        ts.http.Close()
        srv.Close()
    })
    return ts
}

// post a form, returning the status and the body of the reply.
func (ts *testServer) post(t *testing.T, path string, form url.Values) (int, string) {
    t.Helper()

    resp, err := http.PostForm(ts.http.URL + path, form)
    require.NoError(t, err)
    defer resp.Body.Close()

    data, err := io.ReadAll(resp.Body)
    require.NoError(t, err)
    return resp.StatusCode, string(data)
}

// poll wait for the next message to the user.
func (ts *testServer) poll(t *testing.T, token string) (int, *gochat.Message) {
    t.Helper()

    resp, err := http.Get(ts.http.URL + "/poll?token=" + url.QueryEscape(token))
    require.NoError(t, err)
    defer resp.Body.Close()

    data, err := io.ReadAll(resp.Body)
    require.NoError(t, err)
    if resp.StatusCode != http.StatusOK {
        return resp.StatusCode, nil
    }

    msg, err := gochat.DecodeMessage(string(data))
    require.NoError(t, err)
    return resp.StatusCode, msg
}

// pollUntil poll until a message of kind `kind` arrives.
func (ts *testServer) pollUntil(t *testing.T, token string, kind gochat.Kind) *gochat.Message {
    t.Helper()

    deadline := time.Now().Add(time.Second * 5)
    for time.Now().Before(deadline) {
        status, msg := ts.poll(t, token)
        require.Contains(t, []int {http.StatusOK, http.StatusNoContent}, status)
        if msg != nil && msg.Kind == kind {
            return msg
        }
    }

    t.Fatalf("No message of kind %s arrived", kind)
    return nil
}

// login register and log in `username`, returning its token.
func (ts *testServer) login(t *testing.T, username string) string {
    t.Helper()

    form := url.Values {"username": {username}, "password": {"secret1"}}
    status, body := ts.post(t, "/register", form)
    require.Equal(t, http.StatusOK, status, body)

    status, body = ts.post(t, "/login", form)
    require.Equal(t, http.StatusOK, status, body)

    parts := strings.Split(body, "|")
    require.Len(t, parts, 4)
    assert.Equal(t, "OK", parts[0])
    assert.Equal(t, "0", parts[2])
    assert.Equal(t, "Login successful. Welcome " + username + "!", parts[3])
    return parts[1]
}

func TestRegisterAndLoginErrors(t *testing.T) {
    ts := newTestServer(t)

    form := url.Values {"username": {"alice"}, "password": {"secret1"}}
    status, body := ts.post(t, "/register", form)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "OK|Registration successful. Please log in.", body)

    status, body = ts.post(t, "/register", form)
    assert.Equal(t, http.StatusBadRequest, status)
    assert.Equal(t, "ERROR|user already exists", body)

    status, body = ts.post(t, "/register", url.Values {"username": {"a"}, "password": {"secret1"}})
    assert.Equal(t, http.StatusBadRequest, status)
    assert.True(t, strings.HasPrefix(body, "ERROR|invalid username"), body)

    status, body = ts.post(t, "/login", url.Values {"username": {"alice"}, "password": {"nope!"}})
    assert.Equal(t, http.StatusUnauthorized, status)
    assert.Equal(t, "ERROR|incorrect password", body)

    status, body = ts.post(t, "/login", url.Values {"username": {"bob"}, "password": {"secret1"}})
    assert.Equal(t, http.StatusUnauthorized, status)
    assert.Equal(t, "ERROR|user not found", body)

    status, _ = ts.post(t, "/login", form)
    assert.Equal(t, http.StatusOK, status)
    status, body = ts.post(t, "/login", form)
    assert.Equal(t, http.StatusBadRequest, status)
    assert.Equal(t, "ERROR|" + gochat.UserAlreadyConnected.Error(), body)
}

func TestRouting(t *testing.T) {
    ts := newTestServer(t)

    resp, err := http.Get(ts.http.URL + "/login")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

    resp, err = http.Get(ts.http.URL + "/nothing/here")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
    _, err = uuid.Parse(resp.Header.Get("X-Request-ID"))
    assert.NoError(t, err)

    resp, err = http.Get(ts.http.URL + "/")
    require.NoError(t, err)
    page, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, string(page), "/chat?token=")
}

func TestPollingSession(t *testing.T) {
    ts := newTestServer(t)
    token := ts.login(t, "bob")

    status, msg := ts.poll(t, token)
    require.Equal(t, http.StatusOK, status)
    assert.Equal(t, gochat.KindSystem, msg.Kind)
    assert.Equal(t, "bob joined the chat.", msg.Body)

    status, msg = ts.poll(t, token)
    require.Equal(t, http.StatusOK, status)
    assert.Equal(t, gochat.KindUserList, msg.Kind)

    start := time.Now()
    status, _ = ts.poll(t, token)
    assert.Equal(t, http.StatusNoContent, status)
    assert.GreaterOrEqual(t, time.Since(start), time.Millisecond * 100)

    status, body := ts.post(t, "/message", url.Values {"token": {token}, "content": {"hello world"}})
    require.Equal(t, http.StatusOK, status, body)
    msg = ts.pollUntil(t, token, gochat.KindChat)
    assert.Equal(t, "bob", msg.From)
    assert.Equal(t, "hello world", msg.Body)

    status, body = ts.post(t, "/message", url.Values {"token": {token}, "content": {"   "}})
    assert.Equal(t, http.StatusBadRequest, status)
    assert.Equal(t, "ERROR|" + gochat.EmptyMessage.Error(), body)

    status, _ = ts.post(t, "/message", url.Values {"token": {"bogus"}, "content": {"hi"}})
    assert.Equal(t, http.StatusUnauthorized, status)

    status, _ = ts.post(t, "/disconnect", url.Values {"token": {token}})
    assert.Equal(t, http.StatusOK, status)
    status, _ = ts.poll(t, token)
    assert.Equal(t, http.StatusUnauthorized, status)

    require.NoError(t, ts.srv.Close())
    data, err := os.ReadFile(ts.historyFile)
    require.NoError(t, err)

    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    require.Len(t, lines, 3)
    assert.True(t, strings.HasPrefix(lines[1], "MESSAGE|bob||hello+world|"))
}

func TestWebsocketSession(t *testing.T) {
    ts := newTestServer(t)
    bob := ts.login(t, "bob")
    ts.pollUntil(t, bob, gochat.KindUserList)

    alice := ts.login(t, "alice")
    wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/chat?token=" + alice
    conn, _, err := gows.DefaultDialer.Dial(wsURL, nil)
    require.NoError(t, err)
    defer conn.Close()

    msg := ts.pollUntil(t, bob, gochat.KindSystem)
    assert.Equal(t, "alice joined the chat.", msg.Body)

    require.NoError(t, conn.WriteMessage(gows.TextMessage, []byte("/private bob hi bob")))
    msg = ts.pollUntil(t, bob, gochat.KindPrivate)
    assert.Equal(t, "alice", msg.From)
    assert.Equal(t, "hi bob", msg.Body)

    // The sender gets the echo.
    conn.SetReadDeadline(time.Now().Add(time.Second * 5))
    for {
        _, data, err := conn.ReadMessage()
        require.NoError(t, err)
        msg, err := gochat.DecodeMessage(string(data))
        require.NoError(t, err)
        if msg.Kind == gochat.KindPrivate {
            assert.Equal(t, "bob", msg.To)
            break
        }
    }

    conn.Close()
    msg = ts.pollUntil(t, bob, gochat.KindSystem)
    assert.Equal(t, "alice left the chat.", msg.Body)
}

func TestWebsocketRequiresToken(t *testing.T) {
    ts := newTestServer(t)

    wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/chat-raw?token=bogus"
    _, resp, err := gows.DefaultDialer.Dial(wsURL, nil)
    require.Error(t, err)
    require.NotNil(t, resp)
    assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
