package history

import (
    "fmt"
    "os"
    "path/filepath"
    "sync"
)

// FileSink appends lines to a file.
type FileSink struct {
    path string
    file *os.File
    mutex sync.Mutex
}

// NewFileSink open (or create) the file at `path` for appending. Missing
// directories are created.
func NewFileSink(path string) (*FileSink, error) {
    if dir := filepath.Dir(path); dir != "" {
        err := os.MkdirAll(dir, 0o700)
        if err != nil {
            return nil, fmt.Errorf("history: create directory: %w", err)
        }
    }

    f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
    if err != nil {
        return nil, fmt.Errorf("history: open %s: %w", path, err)
    }

    return &FileSink {
        path: path,
        file: f,
    }, nil
}

// WriteLine append `line` to the file.
func (s *FileSink) WriteLine(line string) error {
    s.mutex.Lock()
    defer s.mutex.Unlock()

    if s.file == nil {
        return ErrClosed
    }

    _, err := s.file.WriteString(line + "\n")
    if err != nil {
        return fmt.Errorf("history: write %s: %w", s.path, err)
    }
    return nil
}

// Path retrieve the path of the file.
func (s *FileSink) Path() string {
    return s.path
}

// Close the file. Closing an already closed sink does nothing.
func (s *FileSink) Close() error {
    s.mutex.Lock()
    defer s.mutex.Unlock()

    if s.file == nil {
        return nil
    }

    err := s.file.Close()
    s.file = nil
    return err
}
