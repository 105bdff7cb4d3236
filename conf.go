package go_chat_hub

import (
    "log"
    "time"
)

// For how long a given token should exist without being used.
const defTokenDeadline = time.Minute * 30

// Delay between executions of the token cleanup routine.
const defTokenCleanupDelay = time.Minute * 5

// Delay between checks of whether connected users are still alive.
const defKeepAliveDelay = time.Minute

// For how long a poll waits for a message.
const defPollTimeout = time.Second * 30

// For how long a polled user may go without polling before being removed.
const defPollIdleTimeout = time.Minute * 2

// How many messages may be queued for a polled user.
const defPollQueueSize = 256

// Maximum length, in runes, of a chat message.
const defMaxMessageLen = 500

// How many users may be sent a broadcast concurrently.
const defBroadcastWorkers = 16

// CredentialStore validates and persists user credentials.
type CredentialStore interface {
    // Register a new user. Fails if the user already exists or if the
    // username or password are invalid.
    Register(username, password string) error

    // Authenticate check the user's password.
    Authenticate(username, password string) error
}

// HistorySink durably stores a record of delivered messages.
//
// The hub writes a single line per message, without the trailing line
// break. Failed writes are logged and dropped, so implementations should
// avoid blocking the caller.
type HistorySink interface {
    WriteLine(line string) error
}

// HubConf holds every configurable aspect of a `ChatHub`.
type HubConf struct {
    // Credentials used by `Register` and `Login`. May be nil if users are
    // authenticated externally, through `MarkAuthenticated`.
    Credentials CredentialStore

    // History receives a record of every broadcast and private message.
    // If nil, no history is kept.
    History HistorySink

    // For how long a given token should exist without being used. Using a
    // token extends its life by the same amount.
    TokenDeadline time.Duration

    // Delay between executions of the token cleanup routine.
    TokenCleanupDelay time.Duration

    // Delay between checks of whether connected users are still alive.
    KeepAliveDelay time.Duration

    // Default for how long a poll waits for a message.
    PollTimeout time.Duration

    // For how long a polled user may go without polling before being
    // removed from the hub.
    PollIdleTimeout time.Duration

    // How many messages may be queued for a polled user. Older messages
    // are dropped once the queue is full.
    PollQueueSize int

    // Maximum length, in runes, of a chat message. Longer messages are
    // truncated.
    MaxMessageLen int

    // How many users may be sent a broadcast concurrently.
    BroadcastWorkers int

    // Logger used by the hub to report events. If this is nil, no message
    // shall be logged!
    Logger *log.Logger

    // Whether debug messages should be logged.
    DebugLog bool
}

// GetDefaultHubConf retrieve a configuration with sensible defaults and
// without any credential store, history sink nor logger.
func GetDefaultHubConf() HubConf {
    return HubConf {
        TokenDeadline: defTokenDeadline,
        TokenCleanupDelay: defTokenCleanupDelay,
        KeepAliveDelay: defKeepAliveDelay,
        PollTimeout: defPollTimeout,
        PollIdleTimeout: defPollIdleTimeout,
        PollQueueSize: defPollQueueSize,
        MaxMessageLen: defMaxMessageLen,
        BroadcastWorkers: defBroadcastWorkers,
    }
}

// withDefaults replace every unset value by its default.
func (c HubConf) withDefaults() HubConf {
    def := GetDefaultHubConf()

    if c.TokenDeadline <= 0 {
        c.TokenDeadline = def.TokenDeadline
    }
    if c.TokenCleanupDelay <= 0 {
        c.TokenCleanupDelay = def.TokenCleanupDelay
    }
    if c.KeepAliveDelay <= 0 {
        c.KeepAliveDelay = def.KeepAliveDelay
    }
    if c.PollTimeout <= 0 {
        c.PollTimeout = def.PollTimeout
    }
    if c.PollQueueSize <= 0 {
        c.PollQueueSize = def.PollQueueSize
    }
    if c.MaxMessageLen <= 0 {
        c.MaxMessageLen = def.MaxMessageLen
    }
    if c.BroadcastWorkers <= 0 {
        c.BroadcastWorkers = def.BroadcastWorkers
    }

    return c
}
