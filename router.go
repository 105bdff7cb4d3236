package go_chat_hub

import (
    "context"
    "sync"
    "time"

    "golang.org/x/sync/errgroup"
)

// deliver `msg` to every target, returning the targets that failed.
//
// Different targets are sent the message concurrently, limited by
// `BroadcastWorkers`. Each transport serializes its own writes, so this
// returns only after every target got the message (or failed).
func (h *hub) deliver(tgts []target, msg *Message) []target {
    var failed []target
    var lockFailed sync.Mutex

    if h.conf.DebugLog && h.conf.Logger != nil {
        h.debugf("Delivering message...\n\tkind: \"%s\"\n\tfrom: \"%s\"\n\tto: \"%s\"\n\trecipients: %d\n\tuid: \"%s\"",
                msg.Kind, msg.From, msg.To, len(tgts), msg.getUID())
    }

    if len(tgts) == 1 {
        if err := tgts[0].transport.Deliver(msg); err != nil {
            h.logDeliveryError(tgts[0].name, err)
            return tgts
        }
        return nil
    }

    var g errgroup.Group
    g.SetLimit(h.conf.BroadcastWorkers)
    for _, tgt := range tgts {
        tgt := tgt
        g.Go(func() error {
            err := tgt.transport.Deliver(msg)
            if err != nil {
                h.logDeliveryError(tgt.name, err)

                lockFailed.Lock()
                failed = append(failed, tgt)
                lockFailed.Unlock()
            }
            // Never fail the group, so every other target still gets the
            // message.
            return nil
        })
    }
    g.Wait()

    return failed
}

// logDeliveryError report that a message couldn't be delivered to
// `username`.
func (h *hub) logDeliveryError(username string, err error) {
    if err == ConnEOF {
        h.debugf("Connection to user was closed.\n\tuser: \"%s\"", username)
    } else {
        h.errorf("Couldn't send a message to the user.\n\tuser: \"%s\"\n\terror: %+v",
                username, err)
    }
}

// detachFailed remove every target whose transport failed.
func (h *hub) detachFailed(failed []target) {
    for _, tgt := range failed {
        h.detachTransport(tgt.name, tgt.transport)
    }
}

// writeHistory record `line` in the history sink, if any.
//
// Failures are logged and otherwise ignored.
func (h *hub) writeHistory(line string) {
    if h.conf.History == nil {
        return
    }

    err := h.conf.History.WriteLine(line)
    if err != nil {
        h.errorf("Couldn't write to the history.\n\terror: %+v", err)
    }
}

// Broadcast deliver the message to every user with an attached transport.
func (h *hub) Broadcast(msg *Message) {
    failed := h.deliver(h.targets(), msg)
    h.writeHistory(msg.Encode())
    h.detachFailed(failed)
}

// SendTo deliver the message to `username`, if it's connected.
func (h *hub) SendTo(username string, msg *Message) {
    t, ok := h.lookup(username)
    if !ok {
        h.debugf("Dropping message to disconnected user.\n\tuser: \"%s\"",
                username)
        return
    }

    h.detachFailed(h.deliver([]target {{ name: username, transport: t }}, msg))
}

// SendPrivate deliver the message to its recipient and its sender.
func (h *hub) SendPrivate(msg *Message) bool {
    t, ok := h.lookup(msg.To)
    if !ok {
        return false
    }

    tgts := []target {{ name: msg.To, transport: t }}
    if msg.From != msg.To {
        if echo, ok := h.lookup(msg.From); ok {
            tgts = append(tgts, target { name: msg.From, transport: echo })
        }
    }

    // Deliver in order, so the sender only sees the echo after the
    // recipient got the message.
    var failed []target
    for i := range tgts {
        failed = append(failed, h.deliver(tgts[i:i+1], msg)...)
    }
    h.writeHistory(privatePrefix + msg.Encode())
    h.detachFailed(failed)

    return true
}

// WaitNext wait up to `timeout` for a message to the polled user.
func (h *hub) WaitNext(ctx context.Context, username string,
        timeout time.Duration) (*Message, bool, error) {

    t, ok := h.lookup(username)
    if !ok {
        return nil, false, InvalidUser
    }

    pull, ok := t.(*PullTransport)
    if !ok {
        return nil, false, NotPollable
    }

    if timeout <= 0 {
        timeout = h.conf.PollTimeout
    }

    msg, ok := pull.WaitNext(ctx, timeout)
    return msg, ok, nil
}
