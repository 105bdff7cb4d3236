package history

import (
    "log"
    "sync"
)

// Async writes lines to another sink from a single goroutine.
//
// Lines are written in the order they were accepted. `WriteLine` never
// blocks: once the queue is full, lines are dropped and `ErrSinkFull` is
// returned.
type Async struct {
    sink Sink
    queue chan string
    logger *log.Logger

    // Guards sending to `queue` against closing it.
    lock sync.RWMutex
    closed bool

    done chan struct{}
}

// NewAsync start writing lines to `sink` in the background. Up to `size`
// lines may be queued. Errors from `sink` are reported to `logger`, if not
// nil.
func NewAsync(sink Sink, size int, logger *log.Logger) *Async {
    if sink == nil {
        panic("history/async NewAsync: nil sink")
    }
    if size < 1 {
        size = 1
    }

    a := &Async {
        sink: sink,
        queue: make(chan string, size),
        logger: logger,
        done: make(chan struct{}),
    }
    go a.run()

    return a
}

// run write queued lines until the queue is closed.
func (a *Async) run() {
    defer close(a.done)

    for line := range a.queue {
        err := a.sink.WriteLine(line)
        if err != nil && a.logger != nil {
            a.logger.Printf("[ERROR] history: Couldn't write line.\n\terror: %+v", err)
        }
    }
}

// WriteLine queue `line` to be written.
func (a *Async) WriteLine(line string) error {
    a.lock.RLock()
    defer a.lock.RUnlock()

    if a.closed {
        return ErrClosed
    }

    select {
    case a.queue <- line:
        return nil
    default:
        return ErrSinkFull
    }
}

// Pending retrieve how many lines are waiting to be written.
func (a *Async) Pending() int {
    return len(a.queue)
}

// Close stop accepting lines, wait until every queued line is written and
// close the underlying sink.
func (a *Async) Close() error {
    a.lock.Lock()
    if a.closed {
        a.lock.Unlock()
        return nil
    }
    a.closed = true
    close(a.queue)
    a.lock.Unlock()

    <-a.done
    return a.sink.Close()
}
