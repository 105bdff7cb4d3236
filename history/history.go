// Package history records the messages delivered by the chat hub.
//
// Every sink receives one line per message, without the trailing line
// break, and writes it followed by a single '\n'. Sinks may be chained:
// the server usually wraps a `Pipe` (which feeds a `chat-history` child
// process) in an `Async`, so slow disks never block message delivery. The
// child process itself copies its standard input into a `FileSink`.
package history

import (
    "bufio"
    "errors"
    "io"
)

// maxLineSize is the longest line accepted by `Copy`.
const maxLineSize = 64 * 1024

var (
    // ErrSinkFull is returned by `Async.WriteLine` when its queue is full.
    // The line is dropped.
    ErrSinkFull = errors.New("history: sink is full")

    // ErrClosed is returned when writing to a sink that was closed.
    ErrClosed = errors.New("history: sink is closed")
)

// Sink durably stores lines of history.
type Sink interface {
    io.Closer
    WriteLine(line string) error
}

// Copy write every line read from `r` into `sink`, until `r` reaches EOF.
//
// The sink isn't closed.
func Copy(r io.Reader, sink Sink) (int, error) {
    var count int

    scanner := bufio.NewScanner(r)
    scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
    for scanner.Scan() {
        err := sink.WriteLine(scanner.Text())
        if err != nil {
            return count, err
        }
        count++
    }

    return count, scanner.Err()
}
