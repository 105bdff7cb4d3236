package main

import (
    "crypto/tls"
    "errors"
    "fmt"
    "log"
    "net"
    "net/http"
    "net/url"
    "path"
    "strconv"
    "strings"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/SirGFM/go-chat-hub/credstore"
    gobwas_conn "github.com/SirGFM/go-chat-hub/gobwas-ws-conn"
    gorilla_conn "github.com/SirGFM/go-chat-hub/gorilla-ws-conn"
    "github.com/SirGFM/go-chat-hub/history"
    tcp_conn "github.com/SirGFM/go-chat-hub/tcp-conn"
    "github.com/google/uuid"
    gows "github.com/gorilla/websocket"
)

// Largest request body accepted.
const maxBodySize = 64 * 1024

// Name of the cookie that may carry the token on websocket requests.
const tokenCookie = "X-ChatToken"

// handler process a single request, returning the reply's status.
type handler func(s *server, w http.ResponseWriter, req *http.Request, reqID string) int

// routes maps every path to its handler.
var routes = map[string]handler {
    "": handleChatPage,
    "chat_page": handleChatPage,
    "register": handleRegister,
    "login": handleLogin,
    "message": handleMessage,
    "poll": handlePoll,
    "disconnect": handleDisconnect,
    "chat": handleGorillaChat,
    "chat-raw": handleGobwasChat,
}

type server struct {
    // The server's options.
    args Args

    // The server's HTTP server.
    httpServer *http.Server

    // Listener for persistent line connections. Nil if disabled.
    tcpListener net.Listener

    // TLS configuration shared by every listener. Nil if disabled.
    tlsConf *tls.Config

    // The chat hub.
    hub gochat.ChatHub

    // Where the history is recorded. Nil if disabled.
    history history.Sink

    // Configuration for each kind of persistent connection.
    gorillaConf gorilla_conn.Conf
    gobwasConf gobwas_conn.Conf
    tcpConf tcp_conn.Conf

    logger *log.Logger
}

// ServeHTTP is called by Go's http package whenever a new HTTP request arrives
func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
    reqID := uuid.NewString()
    w.Header().Set("X-Request-ID", reqID)

    uri := cleanURL(req.URL)
    s.logger.Printf("[%s] %s - %s - %s", reqID, req.RemoteAddr, req.Method, uri)

    h, ok := routes[uri]
    if !ok {
        httpTextReply(http.StatusNotFound, "404 - Nothing to see here...", w)
        s.logger.Printf("[%s] %s - %s - %s [404]", reqID, req.RemoteAddr, req.Method, uri)
        return
    }

    status := h(s, w, req, reqID)
    s.logger.Printf("[%s] %s - %s - %s [%d]", reqID, req.RemoteAddr, req.Method, uri, status)
}

// cleanURL so everything is properly escaped/encoded and so it may be split into each of its components.
func cleanURL(uri *url.URL) string {
    // Normalize and strip the URL from its leading prefix (and slash)
    resUrl := path.Clean(uri.EscapedPath())
    if len(resUrl) > 0 && resUrl[0] == '/' {
        resUrl = resUrl[1:]
    } else if len(resUrl) == 1 && resUrl[0] == '.' {
        // Clean converts an empty path into a single "."
        resUrl = ""
    }

    return resUrl
}

// httpTextReply send a simple HTTP response as a plain text.
func httpTextReply(status int, msg string, w http.ResponseWriter) {
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.WriteHeader(status)

    for data := []byte(msg); len(data) > 0; {
        n, err := w.Write(data)
        if err != nil {
            log.Printf("Failed to send %d: %+v", status, err)
            return
        }
        data = data[n:]
    }
}

// replyError send `err` as an "ERROR|<reason>" reply, with a status
// matching the error.
func replyError(err error, w http.ResponseWriter) int {
    status := http.StatusInternalServerError
    reason := "Internal error"

    var chatErr gochat.ChatError
    switch {
    case errors.As(err, &chatErr):
        reason = chatErr.Error()
        switch chatErr {
        case gochat.InvalidToken, gochat.InvalidUser:
            status = http.StatusUnauthorized
        case gochat.UserAlreadyConnected, gochat.EmptyMessage:
            status = http.StatusBadRequest
        case gochat.NotPollable:
            status = http.StatusConflict
        case gochat.HubClosed:
            status = http.StatusServiceUnavailable
        }
    case credstore.IsValidation(err), errors.Is(err, credstore.ErrUserExists):
        status = http.StatusBadRequest
        reason = err.Error()
    case errors.Is(err, credstore.ErrUserNotFound), errors.Is(err, credstore.ErrIncorrectPassword):
        status = http.StatusUnauthorized
        reason = err.Error()
    }

    httpTextReply(status, "ERROR|" + reason, w)
    return status
}

// requireMethod check that the request uses `method`, replying with an
// error if it doesn't.
func requireMethod(method string, w http.ResponseWriter, req *http.Request) bool {
    if req.Method != method {
        w.Header().Set("Allow", method)
        httpTextReply(http.StatusMethodNotAllowed, "ERROR|Method not allowed", w)
        return false
    }
    return true
}

// parseForm read the request's form, limiting its size.
func parseForm(w http.ResponseWriter, req *http.Request) error {
    req.Body = http.MaxBytesReader(w, req.Body, maxBodySize)
    return req.ParseForm()
}

func handleChatPage(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    serveChatPage(w)
    return http.StatusOK
}

func handleRegister(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    if !requireMethod(http.MethodPost, w, req) {
        return http.StatusMethodNotAllowed
    } else if err := parseForm(w, req); err != nil {
        httpTextReply(http.StatusBadRequest, "ERROR|Invalid form", w)
        return http.StatusBadRequest
    }

    err := s.hub.Register(req.PostForm.Get("username"), req.PostForm.Get("password"))
    if err != nil {
        return replyError(err, w)
    }

    httpTextReply(http.StatusOK, "OK|Registration successful. Please log in.", w)
    return http.StatusOK
}

func handleLogin(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    if !requireMethod(http.MethodPost, w, req) {
        return http.StatusMethodNotAllowed
    } else if err := parseForm(w, req); err != nil {
        httpTextReply(http.StatusBadRequest, "ERROR|Invalid form", w)
        return http.StatusBadRequest
    }

    username := strings.TrimSpace(req.PostForm.Get("username"))
    token, err := s.hub.Login(username, req.PostForm.Get("password"))
    if err != nil {
        return replyError(err, w)
    }

    msg := fmt.Sprintf("OK|%s|%d|Login successful. Welcome %s!", token, s.args.TCPPort, username)
    httpTextReply(http.StatusOK, msg, w)
    return http.StatusOK
}

func handleMessage(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    if !requireMethod(http.MethodPost, w, req) {
        return http.StatusMethodNotAllowed
    } else if err := parseForm(w, req); err != nil {
        httpTextReply(http.StatusBadRequest, "ERROR|Invalid form", w)
        return http.StatusBadRequest
    }

    username, err := s.hub.Resolve(req.PostForm.Get("token"))
    if err != nil {
        return replyError(err, w)
    }

    err = s.hub.HandleLine(username, req.PostForm.Get("content"))
    if err != nil {
        return replyError(err, w)
    }

    httpTextReply(http.StatusOK, "OK", w)
    return http.StatusOK
}

// pollTimeout retrieve for how long the poll should wait, as requested by
// the client (in seconds) and limited by the server's configuration.
func (s *server) pollTimeout(req *http.Request) time.Duration {
    max := time.Duration(s.args.PollTimeout)

    secs, err := strconv.Atoi(req.URL.Query().Get("timeout"))
    if err != nil || secs <= 0 {
        return max
    }

    timeout := time.Duration(secs) * time.Second
    if timeout > max {
        return max
    }
    return timeout
}

func handlePoll(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    if !requireMethod(http.MethodGet, w, req) {
        return http.StatusMethodNotAllowed
    }

    username, err := s.hub.Resolve(req.URL.Query().Get("token"))
    if err != nil {
        return replyError(err, w)
    }

    timeout := s.pollTimeout(req)
    msg, ok, err := s.hub.WaitNext(req.Context(), username, timeout)
    if err == gochat.InvalidUser && s.hub.IsConnected(username) {
        // First poll from this user, so start queueing its messages.
        _, err = s.hub.AttachPull(username)
        if err == nil {
            msg, ok, err = s.hub.WaitNext(req.Context(), username, timeout)
        }
    }
    if err != nil {
        return replyError(err, w)
    } else if !ok {
        w.WriteHeader(http.StatusNoContent)
        return http.StatusNoContent
    }

    httpTextReply(http.StatusOK, msg.Encode(), w)
    return http.StatusOK
}

func handleDisconnect(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    if !requireMethod(http.MethodPost, w, req) {
        return http.StatusMethodNotAllowed
    } else if err := parseForm(w, req); err != nil {
        httpTextReply(http.StatusBadRequest, "ERROR|Invalid form", w)
        return http.StatusBadRequest
    }

    username, err := s.hub.Resolve(req.PostForm.Get("token"))
    if err != nil {
        return replyError(err, w)
    }

    s.hub.Detach(username)
    httpTextReply(http.StatusOK, "OK", w)
    return http.StatusOK
}

// wsToken retrieve the token of a websocket request, either from the
// query or from a cookie.
func wsToken(req *http.Request) string {
    if tk := req.URL.Query().Get("token"); len(tk) > 0 {
        return tk
    }

    c, err := req.Cookie(tokenCookie)
    if err != nil {
        return ""
    }
    return c.Value
}

// connectPush hand an upgraded connection over to the hub, blocking until
// it gets closed.
func (s *server) connectPush(reqID, token string, conn gochat.Conn) {
    err := s.hub.ConnectPushAndWait(token, conn)
    if err != nil {
        // Can't do HTTP anymore as the connection was upgraded, so report
        // the error as a message.
        msg := gochat.NewMessage(gochat.KindError, err.Error(), gochat.SystemSender, "")
        conn.SendStr(msg.Encode())
        conn.Close()
        s.logger.Printf("[%s] Couldn't connect to the chat: %+v", reqID, err)
    }
}

// handleWebsocket validate the token and upgrade the request with
// `upgrade`.
func (s *server) handleWebsocket(w http.ResponseWriter, req *http.Request, reqID string,
        upgrade func(http.ResponseWriter, *http.Request) (gochat.Conn, error)) int {

    token := wsToken(req)
    if _, err := s.hub.Resolve(token); err != nil {
        return replyError(err, w)
    }

    conn, err := upgrade(w, req)
    if err != nil {
        s.logger.Printf("[%s] Couldn't upgrade the connection: %+v", reqID, err)
        return http.StatusBadRequest
    }

    s.connectPush(reqID, token, conn)
    return http.StatusSwitchingProtocols
}

func handleGorillaChat(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    return s.handleWebsocket(w, req, reqID,
            func(w http.ResponseWriter, req *http.Request) (gochat.Conn, error) {
                return gorilla_conn.Upgrade(s.gorillaConf, w, req)
            })
}

func handleGobwasChat(s *server, w http.ResponseWriter, req *http.Request, reqID string) int {
    return s.handleWebsocket(w, req, reqID,
            func(w http.ResponseWriter, req *http.Request) (gochat.Conn, error) {
                return gobwas_conn.Upgrade(s.gobwasConf, w, req)
            })
}

// serveTCP hand a line connection over to the hub.
func (s *server) serveTCP(token string, conn gochat.Conn) {
    s.connectPush("tcp-" + uuid.NewString(), token, conn)
}

// ignoreOrigin accept websocket connections from anywhere.
func ignoreOrigin(r *http.Request) bool {
    return true
}

// newServer configure the server as per `args`, without listening on
// anything yet.
func newServer(args Args, logger *log.Logger) (*server, error) {
    hasher, ok := credstore.HasherByName(args.Hasher)
    if !ok {
        return nil, fmt.Errorf("unknown hasher '%s'", args.Hasher)
    }
    credConf := credstore.DefaultConf(args.CredentialFile)
    credConf.Hasher = hasher

    srv := &server {
        args: args,
        logger: logger,
    }

    sink, err := openHistory(args, logger)
    if err != nil {
        return nil, err
    }

    conf := gochat.GetDefaultHubConf()
    conf.Credentials = credstore.New(credConf)
    if sink != nil {
        srv.history = sink
        conf.History = sink
    }
    conf.TokenDeadline = time.Duration(args.TokenDeadline)
    conf.KeepAliveDelay = time.Duration(args.KeepAlive)
    conf.PollTimeout = time.Duration(args.PollTimeout)
    conf.MaxMessageLen = args.MaxMessageLen
    conf.Logger = logger
    conf.DebugLog = args.DebugLog
    srv.hub = gochat.NewHubConf(conf)

    srv.gorillaConf = gorilla_conn.DefaultConf()
    srv.gorillaConf.Upgrader = gows.Upgrader {
        ReadBufferSize: args.ReadSize,
        WriteBufferSize: args.WriteSize,
    }
    if args.IgnoreOrigin {
        srv.gorillaConf.Upgrader.CheckOrigin = ignoreOrigin
    }
    srv.gorillaConf.IdleTimeout = time.Duration(args.IdleTimeout)
    srv.gorillaConf.Logger = logger

    srv.gobwasConf = gobwas_conn.Conf {
        WriteTimeout: srv.gorillaConf.WriteTimeout,
        Logger: logger,
    }

    srv.tcpConf = tcp_conn.DefaultConf()
    srv.tcpConf.Logger = logger

    if len(args.CertFile) > 0 {
        cert, err := tls.LoadX509KeyPair(args.CertFile, args.KeyFile)
        if err != nil {
            srv.Close()
            return nil, fmt.Errorf("couldn't load the TLS certificate: %w", err)
        }
        srv.tlsConf = &tls.Config {
            Certificates: []tls.Certificate {cert},
            MinVersion: tls.VersionTLS12,
        }
    }

    srv.httpServer = &http.Server {
        Addr: fmt.Sprintf("%s:%d", args.IP, args.Port),
        Handler: srv,
        TLSConfig: srv.tlsConf,
        ReadHeaderTimeout: time.Second * 10,
    }

    return srv, nil
}

// run the HTTP server and the TCP listener in the background.
func (s *server) run() error {
    ln, err := net.Listen("tcp", s.httpServer.Addr)
    if err != nil {
        return err
    }

    if s.args.TCPPort > 0 {
        addr := fmt.Sprintf("%s:%d", s.args.IP, s.args.TCPPort)
        s.tcpListener, err = tcp_conn.Listen(addr, s.tlsConf)
        if err != nil {
            ln.Close()
            return err
        }

        go func() {
            err := tcp_conn.Serve(s.tcpListener, s.tcpConf, s.serveTCP)
            if err != nil {
                s.logger.Printf("TCP listener stopped: %+v", err)
            }
        } ()
    }

    go func() {
        var err error

        s.logger.Printf("Waiting...")
        if s.tlsConf != nil {
            err = s.httpServer.ServeTLS(ln, "", "")
        } else {
            err = s.httpServer.Serve(ln)
        }
        if err != nil && err != http.ErrServerClosed {
            s.logger.Printf("HTTP server stopped: %+v", err)
        }
    } ()

    return nil
}

// Close the running web server and clean up resources
func (s *server) Close() error {
    if s.httpServer != nil {
        s.httpServer.Close()
    }
    if s.tcpListener != nil {
        s.tcpListener.Close()
    }
    if s.hub != nil {
        s.hub.Close()
    }
    if s.history != nil {
        err := s.history.Close()
        if err != nil {
            s.logger.Printf("Couldn't close the history: %+v", err)
        }
    }

    return nil
}
