// chat-history records every line received on its standard input into a
// file. It's started by chat-server when configured with a HistoryCmd.
package main

import (
    "fmt"
    "io"
    "log"
    "os"

    "github.com/SirGFM/go-chat-hub/history"
    flag "github.com/spf13/pflag"
)

// run copy `in` into the history file given in `argv`.
func run(argv []string, in io.Reader) error {
    fs := flag.NewFlagSet("chat-history", flag.ContinueOnError)
    file := fs.StringP("file", "f", "data/history.txt", "File where the history is recorded")
    err := fs.Parse(argv)
    if err != nil {
        return err
    }

    sink, err := history.NewFileSink(*file)
    if err != nil {
        return err
    }
    log.Printf("[History] Writing to %s", sink.Path())

    n, err := history.Copy(in, sink)
    closeErr := sink.Close()
    if err != nil {
        return fmt.Errorf("after %d lines: %w", n, err)
    }

    log.Printf("[History] Done after %d lines", n)
    return closeErr
}

func main() {
    log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)

    err := run(os.Args[1:], os.Stdin)
    if err != nil {
        log.Fatalf("[History] Error: %+v", err)
    }
}
