package history

import (
    "context"
    "fmt"
    "io"
    "os"
    "os/exec"
    "sync"
)

// Pipe writes lines to the standard input of a child process.
type Pipe struct {
    cmd *exec.Cmd
    stdin io.WriteCloser
    mutex sync.Mutex
    closed bool
}

// StartPipe launch the program `name` and start feeding it lines. The
// child's standard output and error are forwarded to the server's standard
// error.
//
// The child is killed if `ctx` is done before the pipe is closed.
func StartPipe(ctx context.Context, name string, args ...string) (*Pipe, error) {
    cmd := exec.CommandContext(ctx, name, args...)
    cmd.Stdout = os.Stderr
    cmd.Stderr = os.Stderr

    return StartPipeCmd(cmd)
}

// StartPipeCmd start an already configured command and start feeding it
// lines. `cmd.Stdin` must not be set.
func StartPipeCmd(cmd *exec.Cmd) (*Pipe, error) {
    stdin, err := cmd.StdinPipe()
    if err != nil {
        return nil, fmt.Errorf("history: stdin pipe: %w", err)
    }

    err = cmd.Start()
    if err != nil {
        return nil, fmt.Errorf("history: start %s: %w", cmd.Path, err)
    }

    return &Pipe {
        cmd: cmd,
        stdin: stdin,
    }, nil
}

// WriteLine send `line` to the child process.
func (p *Pipe) WriteLine(line string) error {
    p.mutex.Lock()
    defer p.mutex.Unlock()

    if p.closed {
        return ErrClosed
    }

    _, err := io.WriteString(p.stdin, line + "\n")
    if err != nil {
        return fmt.Errorf("history: write to child: %w", err)
    }
    return nil
}

// Close the child's standard input and wait for it to exit.
func (p *Pipe) Close() error {
    p.mutex.Lock()
    if p.closed {
        p.mutex.Unlock()
        return nil
    }
    p.closed = true
    err := p.stdin.Close()
    p.mutex.Unlock()

    waitErr := p.cmd.Wait()
    if err == nil {
        err = waitErr
    }
    return err
}
