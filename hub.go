package go_chat_hub

import (
    "context"
    "io"
    "sync"
    "sync/atomic"
    "time"
)

// The public interface of the chat hub.
type ChatHub interface {
    io.Closer

    // GetConf retrieve the configuration used by the hub, with every
    // unset value replaced by its default.
    GetConf() HubConf

    // Register a new user in the hub's credential store.
    //
    // Fails with `UserAlreadyConnected` if the username is currently
    // connected, or with whichever error the credential store reports.
    Register(username, password string) error

    // Login authenticate the user against the hub's credential store,
    // marking it as authenticated on success.
    //
    // The returned token must be used to identify the user in every other
    // request, including the handshake of a persistent connection.
    Login(username, password string) (string, error)

    // RequestToken generate a token for an already authenticated user.
    RequestToken(username string) (string, error)

    // Resolve retrieve the user associated with `token`, extending the
    // token's life.
    Resolve(token string) (string, error)

    // MarkAuthenticated add the user to the hub, without any transport.
    //
    // The check for whether the user is already connected is done
    // atomically with the insertion, so only one of two concurrent calls
    // for the same user succeeds. The other fails with
    // `UserAlreadyConnected`.
    MarkAuthenticated(username string) error

    // IsConnected check whether the user is in the hub, regardless of
    // whether a transport has been attached to it.
    IsConnected(username string) bool

    // AttachTransport bind `t` to the authenticated `username`.
    //
    // The first transport attached to a user announces it to every other
    // user. Attaching another transport replaces (and closes) the previous
    // one silently.
    //
    // On error, `t` is left unchanged and must be closed by the caller.
    AttachTransport(username string, t Transport) error

    // AttachPull attach a new `PullTransport` to the authenticated
    // `username`, configured as per the hub's configuration.
    AttachPull(username string) (*PullTransport, error)

    // Detach remove the user from the hub, closing its transport.
    //
    // Only the call that actually removes the user returns true and
    // announces that the user left, so concurrent calls are safe.
    Detach(username string) bool

    // ListConnected retrieve the sorted list of connected users. If
    // `list` is supplied, the users are appended to the that list, so be
    // sure to empty it before calling this function.
    ListConnected(list []string) []string

    // Broadcast deliver the message to every user with an attached
    // transport, and then record it in the history.
    Broadcast(msg *Message)

    // SendTo deliver the message to `username`, if it's connected.
    SendTo(username string, msg *Message)

    // SendPrivate deliver the message to its recipient (`msg.To`) and
    // echo it back to its sender (`msg.From`).
    //
    // Returns false, without recording anything in the history, if the
    // recipient isn't connected.
    SendPrivate(msg *Message) bool

    // HandleLine process a line sent by `username`, either running it as
    // a command (if it starts with a '/') or broadcasting it.
    HandleLine(username, line string) error

    // WaitNext wait up to `timeout` for a message to the polled user.
    //
    // If no message arrives in time, false is returned without an error.
    // A non-positive `timeout` uses the configured `PollTimeout`.
    WaitNext(ctx context.Context, username string, timeout time.Duration) (*Message, bool, error)

    // ConnectPush attach `conn` to the user identified by `token` and
    // spawns a goroutine to forward messages received from `conn` to the
    // hub.
    //
    // On error, `conn` is left unchanged and must be closed by the caller.
    ConnectPush(token string, conn Conn) error

    // ConnectPushAndWait attach `conn` to the user identified by `token`
    // and blocks, forwarding messages received from `conn` to the hub,
    // until the connection is closed.
    //
    // On error, `conn` is left unchanged and must be closed by the caller.
    ConnectPushAndWait(token string, conn Conn) error
}

// session represents an authenticated user.
type session struct {
    // The user's name.
    name string

    // The transport used to deliver messages to the user. Nil until
    // something gets attached.
    transport Transport

    // When the user was authenticated.
    since time.Time

    // Whether the user's arrival was announced. Set, under the registry's
    // lock, by the first attached transport.
    joined bool

    // announced is closed once the join notice was delivered and
    // recorded. The leave notice must wait for it.
    announced chan struct{}
}

// The chat hub.
type hub struct {
    // The hub's configuration.
    conf HubConf

    // Collection of every authenticated user.
    sessions map[string]*session

    // lock for `sessions`.
    lockSessions sync.RWMutex

    // Every currently active token. The token itself is used as the map's
    // key.
    tokens map[string]*accessToken

    // Synchronizes access to tokens.
    tokenMutex sync.Mutex

    // Whether the hub is currently running.
    running uint32

    // stop signals, by getting closed, that the hub should stop.
    stop chan struct{}

    // done is closed once the hub's goroutine exits.
    done chan struct{}
}

// GetConf retrieve the configuration used by the hub.
func (h *hub) GetConf() HubConf {
    return h.conf
}

// isRunning check if the hub is still running.
func (h *hub) isRunning() bool {
    return atomic.LoadUint32(&h.running) == 1
}

// run the hub's housekeeping, periodically removing expired tokens and
// dead users.
func (h *hub) run() {
    keepAlive := time.NewTicker(h.conf.KeepAliveDelay)
    tokenCleanup := time.NewTicker(h.conf.TokenCleanupDelay)
    defer keepAlive.Stop()
    defer tokenCleanup.Stop()
    defer close(h.done)

    for {
        select {
        case <-h.stop:
            return
        case now := <-keepAlive.C:
            h.checkConnections(now)
        case now := <-tokenCleanup.C:
            h.checkTokens(now)
        }
    }
}

// checkConnections verify whether every user is still alive, removing
// those that aren't.
//
// Users that never attached a transport are removed once they have been
// authenticated for longer than a token lives and have no valid token
// left, as nothing could ever attach a transport to them.
func (h *hub) checkConnections(now time.Time) {
    h.debugf("Checking connectivity...")

    for _, name := range h.stale(now) {
        if h.hasToken(name, now) {
            continue
        }
        h.infof("User never connected.\n\tuser: \"%s\"", name)
        h.detachTransport(name, nil)
    }

    for _, tgt := range h.targets() {
        err := tgt.transport.CheckAlive(now)
        if err != nil {
            h.infof("User isn't responding.\n\tuser: \"%s\"\n\terror: %+v",
                    tgt.name, err)
            h.detachTransport(tgt.name, tgt.transport)
        }
    }
}

// Close the hub, removing every user (without announcing it) and
// stopping its goroutine.
//
// This can safely be called multiple times.
func (h *hub) Close() error {
    if !atomic.CompareAndSwapUint32(&h.running, 1, 0) {
        return nil
    }

    h.debugf("Closing hub...")
    close(h.stop)

    h.lockSessions.Lock()
    sessions := h.sessions
    h.sessions = make(map[string]*session)
    h.lockSessions.Unlock()

    for _, s := range sessions {
        if s.transport != nil {
            s.transport.Close()
        }
    }

    h.tokenMutex.Lock()
    h.tokens = make(map[string]*accessToken)
    h.tokenMutex.Unlock()

    <-h.done
    return nil
}

// NewHubConf create a new chat hub, configured as per `conf`.
//
// `NewHubConf()` executes a new goroutine to clean up expired tokens and
// users that stopped responding. To stop this goroutine and clean up its
// resources, call `h.Close()`.
func NewHubConf(conf HubConf) ChatHub {
    h := &hub {
        conf: conf.withDefaults(),
        sessions: make(map[string]*session),
        tokens: make(map[string]*accessToken),
        running: 1,
        stop: make(chan struct{}),
        done: make(chan struct{}),
    }

    go h.run()

    return h
}

// NewHub create a new chat hub using the default configuration, except
// for the credential store and the history sink.
func NewHub(creds CredentialStore, history HistorySink) ChatHub {
    conf := GetDefaultHubConf()
    conf.Credentials = creds
    conf.History = history
    return NewHubConf(conf)
}
