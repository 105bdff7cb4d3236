// chat-client is a terminal client for chat-server.
//
// Messages are received either by long-polling the server or, with
// --tcp, over a persistent line connection.
package main

import (
    "bufio"
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "log"
    "net"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "strings"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    tcp_conn "github.com/SirGFM/go-chat-hub/tcp-conn"
    flag "github.com/spf13/pflag"
    "golang.org/x/term"
)

type options struct {
    server string
    username string
    register bool
    tcp bool
    insecure bool
}

// readPassword prompt for the password, without echoing it if stdin is a
// terminal.
func readPassword(in *bufio.Reader) (string, error) {
    fmt.Fprint(os.Stderr, "Password: ")

    fd := int(os.Stdin.Fd())
    if term.IsTerminal(fd) {
        pass, err := term.ReadPassword(fd)
        fmt.Fprintln(os.Stderr)
        return string(pass), err
    }

    line, err := in.ReadString('\n')
    if err != nil && err != io.EOF {
        return "", err
    }
    return strings.TrimRight(line, "\r\n"), nil
}

// receivePoll print every message received through long-polling, until
// `ctx` is done or the server refuses the token.
func receivePoll(ctx context.Context, c *client, out io.Writer) error {
    for ctx.Err() == nil {
        msg, err := c.poll(ctx)
        if err == errPollAgain {
            continue
        } else if err != nil {
            if ctx.Err() != nil {
                return nil
            } else if _, ok := err.(*replyError); ok {
                return err
            }
            // Network hiccup: wait a bit and try again.
            time.Sleep(time.Second)
            continue
        }

        fmt.Fprintln(out, render(msg))
    }
    return nil
}

// receiveTCP print every message received over a line connection.
func receiveTCP(conn gochat.Conn, out io.Writer) error {
    for {
        line, err := conn.Recv()
        if err != nil {
            return nil
        } else if len(line) == 0 {
            // Keep-alive.
            continue
        }

        msg, err := gochat.DecodeMessage(line)
        if err != nil {
            continue
        }
        fmt.Fprintln(out, render(msg))
    }
}

func run(argv []string) error {
    var opts options

    fs := flag.NewFlagSet("chat-client", flag.ContinueOnError)
    fs.StringVarP(&opts.server, "server", "s", "http://localhost:8888", "URL of the chat server")
    fs.StringVarP(&opts.username, "user", "u", "", "Username (prompted if empty)")
    fs.BoolVarP(&opts.register, "register", "r", false, "Register the user before logging in")
    fs.BoolVar(&opts.tcp, "tcp", false, "Receive messages over a persistent TCP connection")
    fs.BoolVarP(&opts.insecure, "insecure", "k", false, "Accept self-signed certificates")
    err := fs.Parse(argv)
    if err != nil {
        return err
    }

    var tlsConf *tls.Config
    if opts.insecure {
        tlsConf = &tls.Config {InsecureSkipVerify: true}
    }
    httpClient := &http.Client {
        Transport: &http.Transport {TLSClientConfig: tlsConf},
    }

    c, err := newClient(opts.server, httpClient)
    if err != nil {
        return err
    }

    in := bufio.NewReader(os.Stdin)
    if len(opts.username) == 0 {
        fmt.Fprint(os.Stderr, "Username: ")
        line, err := in.ReadString('\n')
        if err != nil {
            return err
        }
        opts.username = strings.TrimSpace(line)
    }
    password, err := readPassword(in)
    if err != nil {
        return err
    }

    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
    defer cancel()

    if opts.register {
        msg, err := c.register(ctx, opts.username, password)
        if err != nil {
            return err
        }
        fmt.Println(msg)
    }

    msg, err := c.login(ctx, opts.username, password)
    if err != nil {
        return err
    }
    fmt.Println(msg)

    done := make(chan error, 1)
    if opts.tcp {
        if c.tcpPort == 0 {
            return fmt.Errorf("the server doesn't accept TCP connections")
        }

        var tcpTLS *tls.Config
        if c.base.Scheme == "https" {
            tcpTLS = &tls.Config {
                ServerName: c.base.Hostname(),
                InsecureSkipVerify: opts.insecure,
            }
        }
        addr := net.JoinHostPort(c.base.Hostname(), strconv.Itoa(c.tcpPort))
        conn, err := tcp_conn.Dial(ctx, tcp_conn.DefaultConf(), addr, tcpTLS, c.token)
        if err != nil {
            return err
        }
        defer tcp_conn.Quit(conn)

        go func() { done <- receiveTCP(conn, os.Stdout) } ()
    } else {
        go func() { done <- receivePoll(ctx, c, os.Stdout) } ()
    }

    lines := make(chan string)
    go func() {
        defer close(lines)
        scanner := bufio.NewScanner(in)
        for scanner.Scan() {
            lines <- scanner.Text()
        }
    } ()

    for {
        select {
        case <-ctx.Done():
            c.disconnect(context.Background())
            return nil
        case err := <-done:
            return err
        case line, ok := <-lines:
            if !ok {
                c.disconnect(context.Background())
                return nil
            } else if len(strings.TrimSpace(line)) == 0 {
                continue
            }

            err := c.send(ctx, line)
            if err != nil {
                log.Printf("Couldn't send the message: %+v", err)
            }
            if strings.EqualFold(strings.TrimSpace(line), "/quit") {
                return nil
            }
        }
    }
}

func main() {
    log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)

    err := run(os.Args[1:])
    if err != nil {
        log.Fatalf("%+v", err)
    }
}
