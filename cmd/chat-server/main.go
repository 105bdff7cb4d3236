package main

import (
    "log"
    "os"
    "os/signal"
    "syscall"
)

// startServer and configure its signal handler.
func startServer() error {
    args, err := parseArgs(os.Args[1:])
    if err != nil {
        return err
    }
    logArgs(args)

    srv, err := newServer(args, log.Default())
    if err != nil {
        return err
    }

    err = srv.run()
    if err != nil {
        srv.Close()
        return err
    }

    intHndlr := make(chan os.Signal, 1)
    signal.Notify(intHndlr, os.Interrupt, syscall.SIGTERM)

    <-intHndlr
    log.Printf("Exiting...")
    return srv.Close()
}

func main() {
    log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)

    defer func() {
        if r := recover(); r != nil {
            log.Fatalf("Application panicked! %+v", r)
        }
    } ()

    err := startServer()
    if err != nil {
        log.Fatalf("Couldn't run the server: %+v", err)
    }
}
