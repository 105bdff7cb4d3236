// pinger is a bot that logs into chat-server and periodically says
// something, to exercise the server under a long-lived connection.
package main

import (
    "context"
    crand "crypto/rand"
    "encoding/binary"
    "fmt"
    "io"
    "log"
    mrand "math/rand"
    "net/http"
    "net/url"
    "os"
    "os/signal"
    "strings"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    gobwas_conn "github.com/SirGFM/go-chat-hub/gobwas-ws-conn"
    flag "github.com/spf13/pflag"
)

func seedIt() *mrand.Rand {
    var buf [8]byte

    crand.Read(buf[:])
    s, _ := binary.Varint(buf[:])
    return mrand.New(mrand.NewSource(s))
}

// nextDelay generate a delay between 125ms and 16s.
func nextDelay(rng *mrand.Rand) time.Duration {
    n := (rng.Uint32() & 0x7f) + 1
    return time.Millisecond * time.Duration(n * 125)
}

// post a form to `server`, returning the fields of a successful reply.
func post(server, path string, form url.Values) ([]string, error) {
    resp, err := http.PostForm(strings.TrimSuffix(server, "/") + "/" + path, form)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()

    data, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, err
    }

    parts := strings.Split(string(data), "|")
    if resp.StatusCode != http.StatusOK || parts[0] != "OK" {
        return nil, fmt.Errorf("%s failed (%d): %s", path, resp.StatusCode, string(data))
    }
    return parts, nil
}

// login into `server`, registering the user if it doesn't exist yet.
func login(server, username, password string) (string, error) {
    form := url.Values {
        "username": {username},
        "password": {password},
    }

    parts, err := post(server, "login", form)
    if err != nil {
        _, regErr := post(server, "register", form)
        if regErr != nil {
            return "", fmt.Errorf("%w (and %v)", err, regErr)
        }
        parts, err = post(server, "login", form)
        if err != nil {
            return "", err
        }
    }

    if len(parts) < 2 {
        return "", fmt.Errorf("malformed login reply")
    }
    return parts[1], nil
}

// wsURL convert the HTTP address of the server into the raw WebSocket
// endpoint.
func wsURL(server, token string) (string, error) {
    u, err := url.Parse(server)
    if err != nil {
        return "", err
    }

    switch u.Scheme {
    case "http":
        u.Scheme = "ws"
    case "https":
        u.Scheme = "wss"
    default:
        return "", fmt.Errorf("unsupported scheme '%s'", u.Scheme)
    }
    u.Path = strings.TrimSuffix(u.Path, "/") + "/chat-raw"
    u.RawQuery = url.Values {"token": {token}}.Encode()
    return u.String(), nil
}

func main() {
    log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
    rng := seedIt()

    server := flag.StringP("server", "s", "http://localhost:8888", "URL of the chat server")
    username := flag.StringP("user", "u", "pinger", "Username of the bot")
    password := flag.StringP("password", "p", "pinger-pass", "Password of the bot")
    flag.Parse()

    token, err := login(*server, *username, *password)
    if err != nil {
        log.Fatalf("Couldn't log in: %+v", err)
    }

    uri, err := wsURL(*server, token)
    if err != nil {
        log.Fatalf("Couldn't build the URL: %+v", err)
    }

    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
    defer cancel()

    conn, err := gobwas_conn.Dial(ctx, gobwas_conn.Conf{}, uri)
    if err != nil {
        log.Fatalf("Couldn't connect: %+v", err)
    }
    defer conn.Close()

    go func() {
        <-ctx.Done()
        log.Printf("Exiting...")
        conn.Close()
    } ()

    go func() {
        for {
            t := nextDelay(rng)
            time.Sleep(t)

            err := conn.SendStr(fmt.Sprintf("%s waited %s to say something", *username, t))
            if err != nil {
                log.Printf("Couldn't send message: %+v", err)
                cancel()
                return
            }
        }
    } ()

    log.Printf("Waiting...")
    for {
        line, err := conn.Recv()
        if err != nil {
            log.Printf("Connection closed: %+v", err)
            return
        } else if len(line) == 0 {
            continue
        }

        msg, err := gochat.DecodeMessage(line)
        if err != nil {
            log.Printf("Ignoring malformed frame '%s'", line)
            continue
        }
        log.Printf("%s", msg)
    }
}
