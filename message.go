package go_chat_hub

import (
    "encoding/hex"
    "errors"
    "hash/crc32"
    "net/url"
    "strings"
    "time"
)

// SystemSender is the sender of every message generated by the hub itself.
const SystemSender = "Server"

// wireSeparator separates the fields of an encoded message.
const wireSeparator = "|"

// wireFields is the number of fields in an encoded message.
const wireFields = 5

// privatePrefix marks private messages in the history.
const privatePrefix = "[PRIVATE] "

// Kind identifies what a message is about.
type Kind uint

const (
    // A chat message broadcast to every user.
    KindChat Kind = iota
    // A message sent from one user to another.
    KindPrivate
    // A notice generated by the hub (e.g., someone joined).
    KindSystem
    // The list of connected users, as a comma separated list.
    KindUserList
    // An error reported back to a user.
    KindError
    // The list of available commands.
    KindHelp
)

var kindNames = [...]string {
    KindChat: "MESSAGE",
    KindPrivate: "PRIVATE",
    KindSystem: "SYSTEM",
    KindUserList: "USER_LIST",
    KindError: "ERROR",
    KindHelp: "HELP",
}

// String return the name of the kind, as used on the wire.
func (k Kind) String() string {
    if int(k) < len(kindNames) {
        return kindNames[k]
    }
    return "UNKNOWN"
}

// parseKind retrieve the Kind named `name`.
func parseKind(name string) (Kind, bool) {
    for i, n := range kindNames {
        if n == name {
            return Kind(i), true
        }
    }
    return 0, false
}

// ErrMalformedFrame is returned by DecodeMessage for frames that can't be
// decoded. Callers are expected to discard such frames.
var ErrMalformedFrame = errors.New("go_chat_hub: malformed frame")

// Message is an immutable event delivered to users.
type Message struct {
    // Kind of the message.
    Kind Kind

    // Body of the message.
    Body string

    // From whom the message was sent. `SystemSender` for messages
    // generated by the hub.
    From string

    // To whom the message is directed. Empty for broadcasts.
    To string

    // Date when the message was created.
    Date time.Time
}

// NewMessage create a new message, setting its `Date` to the current time.
func NewMessage(kind Kind, body, from, to string) *Message {
    return &Message {
        Kind: kind,
        Body: body,
        From: from,
        To: to,
        Date: time.Now(),
    }
}

// newSystemMessage create a new message sent by the hub itself.
func newSystemMessage(kind Kind, body string) *Message {
    return NewMessage(kind, body, SystemSender, "")
}

// Encode the message into a single line frame:
//
//     KIND|from|to|body|date
//
// Every field but the kind is URL encoded, so the frame never contains the
// separator nor a line break. The date is formatted as RFC 3339.
func (m *Message) Encode() string {
    var b strings.Builder

    b.WriteString(m.Kind.String())
    for _, field := range []string {
        m.From,
        m.To,
        m.Body,
        m.Date.Format(time.RFC3339Nano),
    } {
        b.WriteString(wireSeparator)
        b.WriteString(url.QueryEscape(field))
    }

    return b.String()
}

// String format the message to be read by a person.
func (m *Message) String() string {
    t := m.Date.Format("15:04:05")
    if len(m.To) > 0 {
        return "[" + t + "] " + m.From + " -> " + m.To + ": " + m.Body
    }
    return "[" + t + "] " + m.From + ": " + m.Body
}

// getUID generate a unique identifier for the message.
//
// This should only be used for debugging purposes, as performance isn't
// the primary concern of this function.
func (m *Message) getUID() string {
    hasher := crc32.NewIEEE()

    date, _ := m.Date.MarshalBinary()
    hasher.Write(date)
    hasher.Write([]byte(m.Kind.String()))
    hasher.Write([]byte(m.From))
    hasher.Write([]byte(m.To))
    hasher.Write([]byte(m.Body))

    uid := hasher.Sum(nil)
    return hex.EncodeToString(uid)
}

// DecodeMessage reverses `Message.Encode`.
//
// Frames with too few fields, an unknown kind or a badly encoded field
// result in `ErrMalformedFrame`. A leading history marker for private
// messages is accepted and ignored.
func DecodeMessage(frame string) (*Message, error) {
    frame = strings.TrimSuffix(frame, "\n")
    frame = strings.TrimPrefix(frame, privatePrefix)

    parts := strings.SplitN(frame, wireSeparator, wireFields)
    if len(parts) < wireFields {
        return nil, ErrMalformedFrame
    }

    kind, ok := parseKind(parts[0])
    if !ok {
        return nil, ErrMalformedFrame
    }

    var fields [wireFields - 1]string
    for i := range fields {
        val, err := url.QueryUnescape(parts[i+1])
        if err != nil {
            return nil, ErrMalformedFrame
        }
        fields[i] = val
    }

    date, err := time.Parse(time.RFC3339Nano, fields[3])
    if err != nil {
        return nil, ErrMalformedFrame
    }

    return &Message {
        Kind: kind,
        From: fields[0],
        To: fields[1],
        Body: fields[2],
        Date: date,
    }, nil
}
