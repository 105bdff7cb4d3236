package go_chat_hub

import (
    "strings"
    "unicode"
    "unicode/utf8"
)

// commandMarker starts every command.
const commandMarker = "/"

// helpText lists every available command.
const helpText = "Available commands:\n" +
        "/users - List the connected users\n" +
        "/private <user> <message> - Send a private message\n" +
        "/help - Show this help\n" +
        "/quit - Disconnect"

// command runs a command issued by `from`. `args` holds the command
// itself followed by up to two arguments.
type command func(h *hub, from string, args []string)

// commands maps every command to its handler.
var commands = map[string]command {
    "/users": cmdUsers,
    "/private": cmdPrivate,
    "/help": cmdHelp,
    "/quit": cmdQuit,
}

// cmdUsers reply with the list of connected users.
func cmdUsers(h *hub, from string, args []string) {
    names := h.ListConnected(nil)
    h.SendTo(from, newSystemMessage(KindSystem,
            "Connected users: " + strings.Join(names, ", ")))
}

// cmdPrivate send a private message to another user.
func cmdPrivate(h *hub, from string, args []string) {
    if len(args) < 3 {
        h.SendTo(from, newSystemMessage(KindError,
                "Usage: /private <user> <message>"))
        return
    }

    msg := NewMessage(KindPrivate, args[2], from, args[1])
    if !h.SendPrivate(msg) {
        h.SendTo(from, newSystemMessage(KindError,
                "User '" + args[1] + "' not found."))
    }
}

// cmdHelp reply with the list of commands.
func cmdHelp(h *hub, from string, args []string) {
    h.SendTo(from, newSystemMessage(KindHelp, helpText))
}

// cmdQuit disconnect the user.
func cmdQuit(h *hub, from string, args []string) {
    h.Detach(from)
}

// splitCommand split `line` on white space into at most three parts. The
// last part keeps its inner white space.
func splitCommand(line string) []string {
    var parts []string

    for len(parts) < 2 {
        line = strings.TrimLeftFunc(line, unicode.IsSpace)
        if len(line) == 0 {
            return parts
        }

        end := strings.IndexFunc(line, unicode.IsSpace)
        if end == -1 {
            return append(parts, line)
        }
        parts = append(parts, line[:end])
        line = line[end:]
    }

    line = strings.TrimSpace(line)
    if len(line) > 0 {
        parts = append(parts, line)
    }
    return parts
}

// sanitize trim the message and truncate it to `maxLen` runes.
func sanitize(msg string, maxLen int) string {
    msg = strings.TrimSpace(msg)
    if utf8.RuneCountInString(msg) <= maxLen {
        return msg
    }

    runes := []rune(msg)
    return strings.TrimSpace(string(runes[:maxLen]))
}

// HandleLine process a line sent by `username`.
func (h *hub) HandleLine(username, line string) error {
    if !h.IsConnected(username) {
        return InvalidUser
    }

    line = sanitize(line, h.conf.MaxMessageLen)
    if len(line) == 0 {
        return EmptyMessage
    }

    if !strings.HasPrefix(line, commandMarker) {
        h.Broadcast(NewMessage(KindChat, line, username, ""))
        return nil
    }

    args := splitCommand(line)
    cmd, ok := commands[strings.ToLower(args[0])]
    if !ok {
        h.debugf("Unknown command.\n\tuser: \"%s\"\n\tcommand: \"%s\"",
                username, args[0])
        h.SendTo(username, newSystemMessage(KindError,
                "Unknown command '" + args[0] +
                "'. Valid commands: /users, /private, /help, /quit"))
        return nil
    }

    cmd(h, username, args)
    return nil
}
