package go_chat_hub

import (
    "context"
    "sync"
    "time"
)

// PullTransport queues messages until the remote endpoint asks for them,
// realizing long-polling on transports that can't keep a connection open.
type PullTransport struct {
    // queue of messages waiting to be retrieved, oldest first.
    queue []*Message

    // maxQueue is the maximum number of queued messages. When the queue is
    // full, the oldest message is dropped.
    maxQueue int

    // idleTimeout after which the transport is considered abandoned, if
    // nobody waited on it.
    idleTimeout time.Duration

    // lastPoll is when the last call to `WaitNext` finished.
    lastPoll time.Time

    // waiting counts callers currently blocked in `WaitNext`.
    waiting int

    // dropped counts messages discarded because the queue was full.
    dropped uint64

    // closed is set once the transport gets closed.
    closed bool

    // lock fields that could be accessed concurrently.
    mutex sync.Mutex

    // signal wakes up a blocked `WaitNext` when a message is queued.
    signal chan struct{}

    // stop signals, by getting closed, that the transport was closed.
    stop chan struct{}
}

// NewPullTransport create a Transport that queues up to `maxQueue`
// messages and is considered dead if not polled within `idleTimeout`.
//
// A non-positive `idleTimeout` disables the liveness check.
func NewPullTransport(maxQueue int, idleTimeout time.Duration) *PullTransport {
    if maxQueue <= 0 {
        maxQueue = defPollQueueSize
    }

    return &PullTransport {
        maxQueue: maxQueue,
        idleTimeout: idleTimeout,
        lastPoll: time.Now(),
        signal: make(chan struct{}, 1),
        stop: make(chan struct{}),
    }
}

// Deliver queue the message without blocking.
func (p *PullTransport) Deliver(msg *Message) error {
    p.mutex.Lock()
    if p.closed {
        p.mutex.Unlock()
        return ConnEOF
    }

    if len(p.queue) >= p.maxQueue {
        p.queue[0] = nil
        p.queue = p.queue[1:]
        p.dropped++
    }
    p.queue = append(p.queue, msg)
    p.mutex.Unlock()

    select {
    case p.signal <- struct{}{}:
    default:
        // A wake up is already pending.
    }

    return nil
}

// pop remove the oldest message from the queue. The transport must be
// locked by the caller.
func (p *PullTransport) pop() *Message {
    msg := p.queue[0]
    p.queue[0] = nil
    p.queue = p.queue[1:]
    return msg
}

// WaitNext blocks until a message is available, returning it, or until
// `timeout` elapses, returning false.
//
// WaitNext also returns false as soon as `ctx` is done or the transport
// gets closed. Only a single concurrent caller per transport is
// meaningful.
func (p *PullTransport) WaitNext(ctx context.Context, timeout time.Duration) (*Message, bool) {
    timer := time.NewTimer(timeout)
    defer timer.Stop()

    p.mutex.Lock()
    p.waiting++
    p.mutex.Unlock()

    defer func() {
        p.mutex.Lock()
        p.waiting--
        p.lastPoll = time.Now()
        p.mutex.Unlock()
    } ()

    for {
        p.mutex.Lock()
        if p.closed {
            p.mutex.Unlock()
            return nil, false
        } else if len(p.queue) > 0 {
            msg := p.pop()
            p.mutex.Unlock()
            return msg, true
        }
        p.mutex.Unlock()

        select {
        case <-p.signal:
            // Check the queue once again.
        case <-p.stop:
            return nil, false
        case <-ctx.Done():
            return nil, false
        case <-timer.C:
            return nil, false
        }
    }
}

// Len retrieve the number of queued messages.
func (p *PullTransport) Len() int {
    p.mutex.Lock()
    defer p.mutex.Unlock()
    return len(p.queue)
}

// Dropped retrieve how many messages were discarded because the queue was
// full.
func (p *PullTransport) Dropped() uint64 {
    p.mutex.Lock()
    defer p.mutex.Unlock()
    return p.dropped
}

// CheckAlive fails if nobody is waiting on the transport and it hasn't
// been polled in a long time.
func (p *PullTransport) CheckAlive(now time.Time) error {
    p.mutex.Lock()
    defer p.mutex.Unlock()

    if p.closed {
        return ConnEOF
    } else if p.idleTimeout > 0 && p.waiting == 0 &&
            now.Sub(p.lastPoll) > p.idleTimeout {
        return ConnEOF
    }
    return nil
}

// Close the transport, releasing anyone blocked on `WaitNext`.
func (p *PullTransport) Close() error {
    p.mutex.Lock()
    defer p.mutex.Unlock()

    if !p.closed {
        p.closed = true
        p.queue = nil
        close(p.stop)
    }
    return nil
}
