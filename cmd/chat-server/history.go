package main

import (
    "context"
    "log"

    "github.com/SirGFM/go-chat-hub/history"
)

// openHistory start recording the history as configured by `args`.
//
// If a `HistoryCmd` is configured, the history is written by that program,
// which gets the history file through its `--file` flag. Otherwise, the
// server writes the file itself. Either way, lines are queued so slow
// writes never hold back the chat.
func openHistory(args Args, logger *log.Logger) (history.Sink, error) {
    if len(args.HistoryFile) == 0 {
        return nil, nil
    }

    var sink history.Sink
    var err error
    if len(args.HistoryCmd) > 0 {
        sink, err = history.StartPipe(context.Background(), args.HistoryCmd,
                "--file", args.HistoryFile)
    } else {
        sink, err = history.NewFileSink(args.HistoryFile)
    }
    if err != nil {
        return nil, err
    }

    return history.NewAsync(sink, args.HistoryQueue, logger), nil
}
