package go_chat_hub

// Error type for this package.
type ChatError uint

const (
    // Invalid token. Either the token doesn't exist, it has already been
    // revoked or it has already expired.
    InvalidToken ChatError = iota
    // The user isn't authenticated in the hub.
    InvalidUser
    // The user is already connected to the hub.
    UserAlreadyConnected
    // The connection was closed, either locally or by the remote endpoint.
    ConnEOF
    // The message is empty after being sanitized.
    EmptyMessage
    // The user's transport doesn't support polling.
    NotPollable
    // The hub wasn't configured with a credential store.
    NoCredentialStore
    // The hub has already been closed.
    HubClosed
    // Timed out waiting for something in a test.
    TestTimeout
)

func (c ChatError) Error() string {
    switch c {
    case InvalidToken:
        return "Invalid token"
    case InvalidUser:
        return "User is not authenticated"
    case UserAlreadyConnected:
        return "User is already connected"
    case ConnEOF:
        return "Connection closed"
    case EmptyMessage:
        return "Empty message"
    case NotPollable:
        return "User's connection can't be polled"
    case NoCredentialStore:
        return "No credential store configured"
    case HubClosed:
        return "Hub is closed"
    case TestTimeout:
        return "Test timed out"
    default:
        return "Unknown error"
    }
}
