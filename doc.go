/*
Package go_chat_hub implements a transport-agnostic chat hub, where
authenticated users exchange broadcast and private messages.

The hub is divided into a few components:

 - `ChatHub`: The hub itself, which keeps track of who's connected and
   routes messages between them
 - `Transport`: How messages reach a single user. Either pushed over a
   persistent `Conn`, or queued in a `PullTransport` until the user polls
 - `CredentialStore`: Where usernames and passwords are kept (see the
   `credstore` package for a file based implementation)
 - `HistorySink`: Where delivered messages are recorded (see the
   `history` package)

The first step is to instantiate the hub through either `NewHub` or
`NewHubConf`. The last one should be the preferred variant, as it's the
one that allows the most customization:

    conf := go_chat_hub.GetDefaultHubConf()
    conf.Credentials = store
    conf.History = sink
    // Modify 'conf' as desired
    hub := go_chat_hub.NewHubConf(conf)

There's no global hub. Every request handler must be given the hub it
should use, which also allows running independent hubs side by side (e.g.,
in tests).

Users must first register and then log in. Logging in marks the user as
authenticated and returns a token, which must be used to identify the user
from then on:

    err := hub.Register("alice", "secret1")
    if err != nil {
        // Handle the error
    }

    token, err := hub.Login("alice", "secret1")
    if err != nil {
        // Handle the error
    }

An authenticated user only starts receiving messages after a transport is
attached to it. A transport that keeps a connection open (TCP, WebSocket
etc) should implement `Conn` and be connected with either `ConnectPush`,
which spawns a goroutine to wait for messages from the user, or
`ConnectPushAndWait`, which blocks until the `Conn` gets closed:

    var conn Conn
    err := hub.ConnectPushAndWait(token, conn)
    if err != nil {
        // Handle the error
    }

Transports that can't keep a connection open should attach a
`PullTransport` instead, and repeatedly wait for messages:

    username, err := hub.Resolve(token)
    // ...
    _, err = hub.AttachPull(username)
    // ...
    msg, ok, err := hub.WaitNext(ctx, username, 30 * time.Second)
    if err == nil && !ok {
        // No message arrived in time; ask the client to poll again.
    }

Whenever a transport is attached for the first time, every user is told
that the user joined. Likewise, detaching a user (explicitly, through
"/quit" or because its transport failed) tells every other user that the
user left. Exactly one such notice is sent, even if the user is detached
from different goroutines at the same time.

Lines received from users are processed by `HandleLine`. Lines starting
with a '/' are commands (`/users`, `/private <user> <message>`, `/help`
and `/quit`), anything else is broadcast to every user.
*/
package go_chat_hub
