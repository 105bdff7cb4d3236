package go_chat_hub

import (
    crand "crypto/rand"
    "encoding/hex"
    "time"
)

// Access token handed to an authenticated user.
type accessToken struct {
    // The username for whom the token was generated.
    username string

    // Expiration time for this token.
    deadline time.Time
}

// RequestToken generate a token associated with the already authenticated
// `username`.
//
// See `ChatHub.RequestToken` for a more complete description.
//
// The generated token is generated from a cryptographically secure source and
// encoded as a hexadecimal string.
func (h *hub) RequestToken(username string) (string, error) {
    var randToken [32]byte

    if !h.IsConnected(username) {
        return "", InvalidUser
    }

    _, err := crand.Read(randToken[:])
    if err != nil {
        return "", err
    }

    token := hex.EncodeToString(randToken[:])
    value := &accessToken {
        username: username,
        deadline: time.Now().Add(h.conf.TokenDeadline),
    }

    h.tokenMutex.Lock()
    h.tokens[token] = value
    h.tokenMutex.Unlock()

    return token, nil
}

// Resolve retrieve the user associated with `token`.
//
// Tokens are valid for as long as their user stays connected and keeps
// using them. Every successful call extends the token's deadline.
func (h *hub) Resolve(token string) (string, error) {
    now := time.Now()

    h.tokenMutex.Lock()
    defer h.tokenMutex.Unlock()

    val, ok := h.tokens[token]
    if !ok {
        return "", InvalidToken
    } else if now.After(val.deadline) || !h.IsConnected(val.username) {
        delete(h.tokens, token)
        return "", InvalidToken
    }

    val.deadline = now.Add(h.conf.TokenDeadline)
    return val.username, nil
}

// revokeTokens remove every token associated with `username`.
func (h *hub) revokeTokens(username string) {
    h.tokenMutex.Lock()
    for key, val := range h.tokens {
        if val.username == username {
            delete(h.tokens, key)
        }
    }
    h.tokenMutex.Unlock()
}

// checkTokens remove every token that expired by `now`.
func (h *hub) checkTokens(now time.Time) {
    h.tokenMutex.Lock()
    for key, val := range h.tokens {
        if now.After(val.deadline) {
            delete(h.tokens, key)
        }
    }
    h.tokenMutex.Unlock()
}

// hasToken check whether `username` has any token valid at `now`.
func (h *hub) hasToken(username string, now time.Time) bool {
    h.tokenMutex.Lock()
    defer h.tokenMutex.Unlock()

    for _, val := range h.tokens {
        if val.username == username && !now.After(val.deadline) {
            return true
        }
    }
    return false
}
