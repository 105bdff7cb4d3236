package go_chat_hub

// module is the string used when logging messages from this package.
const module = "go_chat_hub"

// debugf log a debug message, if debug messages are enabled.
func (h *hub) debugf(format string, args ...interface{}) {
    if h.conf.DebugLog && h.conf.Logger != nil {
        h.conf.Logger.Printf("[DEBUG] " + module + ": " + format, args...)
    }
}

// infof log an informational message.
func (h *hub) infof(format string, args ...interface{}) {
    if h.conf.Logger != nil {
        h.conf.Logger.Printf("[INFO] " + module + ": " + format, args...)
    }
}

// errorf log an error message.
func (h *hub) errorf(format string, args ...interface{}) {
    if h.conf.Logger != nil {
        h.conf.Logger.Printf("[ERROR] " + module + ": " + format, args...)
    }
}
