package go_chat_hub

import (
    "sort"
    "strings"
    "time"
)

// target is a user that may receive messages.
type target struct {
    name string
    transport Transport
}

// MarkAuthenticated add the user to the hub, without any transport.
func (h *hub) MarkAuthenticated(username string) error {
    if !h.isRunning() {
        return HubClosed
    } else if len(username) == 0 {
        return InvalidUser
    }

    h.lockSessions.Lock()
    defer h.lockSessions.Unlock()

    if _, ok := h.sessions[username]; ok {
        h.debugf("User tried to authenticate more than once.\n\tuser: \"%s\"",
                username)
        return UserAlreadyConnected
    }

    h.sessions[username] = &session {
        name: username,
        since: time.Now(),
        announced: make(chan struct{}),
    }
    h.debugf("User authenticated.\n\tuser: \"%s\"", username)

    return nil
}

// IsConnected check whether the user is in the hub.
func (h *hub) IsConnected(username string) bool {
    h.lockSessions.RLock()
    _, ok := h.sessions[username]
    h.lockSessions.RUnlock()

    return ok
}

// AttachTransport bind `t` to the authenticated `username`.
func (h *hub) AttachTransport(username string, t Transport) error {
    if t == nil {
        panic("go_chat_hub/registry AttachTransport: nil transport")
    }

    h.lockSessions.Lock()
    s, ok := h.sessions[username]
    if !ok {
        h.lockSessions.Unlock()

        h.errorf("Unauthenticated user tried to attach a transport.\n\tuser: \"%s\"",
                username)
        return InvalidUser
    }
    prev := s.transport
    s.transport = t
    announce := !s.joined
    s.joined = true
    h.lockSessions.Unlock()

    if prev != nil && prev != t {
        h.debugf("Replacing the user's transport.\n\tuser: \"%s\"", username)
        prev.Close()
    }
    if !announce {
        return nil
    }

    // Inlined `Broadcast`, so the leave notice may proceed before failed
    // transports get detached.
    msg := newSystemMessage(KindSystem, username + " joined the chat.")
    failed := h.deliver(h.targets(), msg)
    h.writeHistory(msg.Encode())
    close(s.announced)

    h.detachFailed(failed)
    h.broadcastUserList()

    return nil
}

// AttachPull attach a new `PullTransport` to the authenticated `username`.
func (h *hub) AttachPull(username string) (*PullTransport, error) {
    t := NewPullTransport(h.conf.PollQueueSize, h.conf.PollIdleTimeout)

    err := h.AttachTransport(username, t)
    if err != nil {
        t.Close()
        return nil, err
    }

    return t, nil
}

// Detach remove the user from the hub, closing its transport.
func (h *hub) Detach(username string) bool {
    return h.remove(username, nil)
}

// detachTransport remove the user from the hub only if `t` is still its
// transport.
//
// This is used when the transport itself fails, so a stale transport
// doesn't remove the user after it got a new one.
func (h *hub) detachTransport(username string, t Transport) bool {
    return h.detach(username, t)
}

// detach remove the user from the hub only if its transport is
// `expected`. A nil `expected` only matches users without a transport.
//
// Checking and removing the user is done in a single step, so only one of
// concurrent calls for the same user announces that the user left.
func (h *hub) detach(username string, expected Transport) bool {
    return h.remove(username, func(s *session) bool {
        return s.transport == expected
    })
}

// remove the user from the hub if `match` accepts its session, announcing
// that it left if its arrival was ever announced.
func (h *hub) remove(username string, match func(*session) bool) bool {
    h.lockSessions.Lock()
    s, ok := h.sessions[username]
    if ok && match != nil && !match(s) {
        ok = false
    }
    if ok {
        delete(h.sessions, username)
    }
    h.lockSessions.Unlock()

    if !ok {
        return false
    }

    h.debugf("Removing user...\n\tuser: \"%s\"", username)

    if s.transport != nil {
        s.transport.Close()
    }
    h.revokeTokens(username)

    if s.joined {
        <-s.announced
        h.Broadcast(newSystemMessage(KindSystem, username + " left the chat."))
    }
    h.broadcastUserList()

    return true
}

// stale retrieve every user that was authenticated before `now` minus the
// token deadline and still has no transport.
func (h *hub) stale(now time.Time) []string {
    h.lockSessions.RLock()
    defer h.lockSessions.RUnlock()

    var list []string
    for k, s := range h.sessions {
        if s.transport == nil && now.Sub(s.since) > h.conf.TokenDeadline {
            list = append(list, k)
        }
    }

    return list
}

// ListConnected retrieve the sorted list of connected users.
func (h *hub) ListConnected(list []string) []string {
    start := len(list)

    h.lockSessions.RLock()
    for k := range h.sessions {
        list = append(list, k)
    }
    h.lockSessions.RUnlock()

    sort.Strings(list[start:])
    return list
}

// targets retrieve every user with an attached transport.
func (h *hub) targets() []target {
    h.lockSessions.RLock()
    defer h.lockSessions.RUnlock()

    list := make([]target, 0, len(h.sessions))
    for k, s := range h.sessions {
        if s.transport != nil {
            list = append(list, target {
                name: k,
                transport: s.transport,
            })
        }
    }

    return list
}

// lookup retrieve the user's transport, if it's connected and has one.
func (h *hub) lookup(username string) (Transport, bool) {
    h.lockSessions.RLock()
    defer h.lockSessions.RUnlock()

    s, ok := h.sessions[username]
    if !ok || s.transport == nil {
        return nil, false
    }
    return s.transport, true
}

// broadcastUserList send the list of connected users to every user.
//
// User lists aren't recorded in the history.
func (h *hub) broadcastUserList() {
    names := h.ListConnected(nil)
    msg := newSystemMessage(KindUserList, strings.Join(names, ","))
    h.detachFailed(h.deliver(h.targets(), msg))
}
