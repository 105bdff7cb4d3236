package go_chat_hub

import (
    "strings"
)

// Register a new user in the hub's credential store.
func (h *hub) Register(username, password string) error {
    if h.conf.Credentials == nil {
        return NoCredentialStore
    }

    username = strings.TrimSpace(username)
    if h.IsConnected(username) {
        return UserAlreadyConnected
    }

    err := h.conf.Credentials.Register(username, password)
    if err != nil {
        h.debugf("Couldn't register the user.\n\tuser: \"%s\"\n\terror: %+v",
                username, err)
        return err
    }

    h.infof("User registered.\n\tuser: \"%s\"", username)
    return nil
}

// Login authenticate the user against the hub's credential store.
func (h *hub) Login(username, password string) (string, error) {
    if h.conf.Credentials == nil {
        return "", NoCredentialStore
    }

    username = strings.TrimSpace(username)
    if h.IsConnected(username) {
        return "", UserAlreadyConnected
    }

    err := h.conf.Credentials.Authenticate(username, password)
    if err != nil {
        h.debugf("Couldn't authenticate the user.\n\tuser: \"%s\"\n\terror: %+v",
                username, err)
        return "", err
    }

    // Two concurrent logins may both pass the check above, but only one
    // gets marked as authenticated.
    err = h.MarkAuthenticated(username)
    if err != nil {
        return "", err
    }

    token, err := h.RequestToken(username)
    if err != nil {
        h.errorf("Couldn't generate a token.\n\tuser: \"%s\"\n\terror: %+v",
                username, err)
        h.Detach(username)
        return "", err
    }

    return token, nil
}

// connectPush attach a push transport, wrapping `conn`, to the user
// identified by `token`.
func (h *hub) connectPush(token string, conn Conn) (string, Transport, error) {
    if conn == nil {
        panic("go_chat_hub/session ConnectPush: nil conn")
    }

    username, err := h.Resolve(token)
    if err != nil {
        return "", nil, err
    }

    t := NewPushTransport(conn)
    err = h.AttachTransport(username, t)
    if err != nil {
        return "", nil, err
    }

    return username, t, nil
}

// serve wait for new messages from the user and forward them to the hub.
//
// Once `conn` gets closed, or the user leaves the hub, the user is
// detached (if `t` is still its transport).
func (h *hub) serve(username string, t Transport, conn Conn) {
    defer h.detachTransport(username, t)

    for {
        msg, err := conn.Recv()
        if err != nil {
            if err != ConnEOF {
                h.debugf("Couldn't receive from the user.\n\tuser: \"%s\"\n\terror: %+v",
                        username, err)
            }
            return
        }

        err = h.HandleLine(username, msg)
        if err == InvalidUser {
            // The user left (e.g., through "/quit").
            return
        } else if err == EmptyMessage {
            continue
        } else if err != nil {
            h.SendTo(username, newSystemMessage(KindError, err.Error()))
        }
    }
}

// ConnectPush attach `conn` to the user identified by `token` and forward
// its messages to the hub in a new goroutine.
func (h *hub) ConnectPush(token string, conn Conn) error {
    username, t, err := h.connectPush(token, conn)
    if err != nil {
        return err
    }

    go h.serve(username, t, conn)
    return nil
}

// ConnectPushAndWait attach `conn` to the user identified by `token` and
// blocks, forwarding its messages to the hub.
//
// Differently from `ConnectPush`, this function handles messages from the
// remote client in the calling goroutine. This may be advantageous if the
// external server already spawns a new goroutine to handle each new
// connection.
func (h *hub) ConnectPushAndWait(token string, conn Conn) error {
    username, t, err := h.connectPush(token, conn)
    if err != nil {
        return err
    }

    h.serve(username, t, conn)
    return nil
}
