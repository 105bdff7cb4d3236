package main

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"

    gochat "github.com/SirGFM/go-chat-hub"
)

// client talks to the chat server over HTTP.
type client struct {
    // base URL of the server.
    base *url.URL

    http *http.Client

    // token identifying the user, set after logging in.
    token string

    // tcpPort where the server accepts persistent connections. 0 if
    // disabled.
    tcpPort int
}

// errPollAgain is returned by `poll` when no message arrived in time.
var errPollAgain = errors.New("no message, poll again")

// replyError is a failure reported by the server.
type replyError struct {
    status int
    reason string
}

func (e *replyError) Error() string {
    return fmt.Sprintf("%s (%d)", e.reason, e.status)
}

// newClient create a client for the server at `server`.
func newClient(server string, httpClient *http.Client) (*client, error) {
    base, err := url.Parse(server)
    if err != nil {
        return nil, err
    } else if base.Scheme != "http" && base.Scheme != "https" {
        return nil, fmt.Errorf("unsupported scheme '%s'", base.Scheme)
    }

    return &client {
        base: base,
        http: httpClient,
    }, nil
}

// endpoint retrieve the URL for `path`.
func (c *client) endpoint(path string, query url.Values) string {
    u := *c.base
    u.Path = strings.TrimSuffix(u.Path, "/") + "/" + path
    u.RawQuery = query.Encode()
    return u.String()
}

// parseReply split a reply into its fields, checking that it succeeded.
func parseReply(status int, body string) ([]string, error) {
    parts := strings.Split(body, "|")
    if status != http.StatusOK || parts[0] != "OK" {
        reason := body
        if len(parts) > 1 && parts[0] == "ERROR" {
            reason = strings.Join(parts[1:], "|")
        }
        return nil, &replyError {status: status, reason: reason}
    }
    return parts, nil
}

// post a form, returning the fields of the reply.
func (c *client) post(ctx context.Context, path string, form url.Values) ([]string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil),
            strings.NewReader(form.Encode()))
    if err != nil {
        return nil, err
    }
    req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

    resp, err := c.http.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()

    data, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, err
    }
    return parseReply(resp.StatusCode, string(data))
}

// register a new user.
func (c *client) register(ctx context.Context, username, password string) (string, error) {
    parts, err := c.post(ctx, "register", url.Values {
        "username": {username},
        "password": {password},
    })
    if err != nil {
        return "", err
    }
    return strings.Join(parts[1:], "|"), nil
}

// login authenticate the user, keeping its token.
func (c *client) login(ctx context.Context, username, password string) (string, error) {
    parts, err := c.post(ctx, "login", url.Values {
        "username": {username},
        "password": {password},
    })
    if err != nil {
        return "", err
    } else if len(parts) < 4 {
        return "", fmt.Errorf("malformed login reply")
    }

    c.token = parts[1]
    c.tcpPort, _ = strconv.Atoi(parts[2])
    return strings.Join(parts[3:], "|"), nil
}

// send a line to the chat.
func (c *client) send(ctx context.Context, line string) error {
    _, err := c.post(ctx, "message", url.Values {
        "token": {c.token},
        "content": {line},
    })
    return err
}

// disconnect leave the chat.
func (c *client) disconnect(ctx context.Context) error {
    _, err := c.post(ctx, "disconnect", url.Values {"token": {c.token}})
    return err
}

// poll wait for the next message.
func (c *client) poll(ctx context.Context) (*gochat.Message, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet,
            c.endpoint("poll", url.Values {"token": {c.token}}), nil)
    if err != nil {
        return nil, err
    }

    resp, err := c.http.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()

    data, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, err
    }

    switch resp.StatusCode {
    case http.StatusOK:
        return gochat.DecodeMessage(string(data))
    case http.StatusNoContent:
        return nil, errPollAgain
    default:
        _, err := parseReply(resp.StatusCode, string(data))
        return nil, err
    }
}

// render format a message to be shown to the user.
func render(msg *gochat.Message) string {
    switch msg.Kind {
    case gochat.KindUserList:
        return "Online: " + strings.Join(strings.Split(msg.Body, ","), ", ")
    case gochat.KindError:
        return "Error: " + msg.Body
    default:
        return msg.String()
    }
}
