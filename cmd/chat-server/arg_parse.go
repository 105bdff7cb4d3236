package main

import (
    "encoding/json"
    "fmt"
    "io"
    "log"
    "os"
    "time"

    flag "github.com/spf13/pflag"
)

// Duration is a time.Duration that may be read from a JSON string (e.g.,
// "30s") and used as a command-line flag.
type Duration time.Duration

// String implements pflag.Value.
func (d *Duration) String() string {
    return time.Duration(*d).String()
}

// Set implements pflag.Value.
func (d *Duration) Set(s string) error {
    v, err := time.ParseDuration(s)
    if err != nil {
        return err
    }
    *d = Duration(v)
    return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
    return "duration"
}

// UnmarshalJSON accept either a duration string or a number of
// nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
    var s string
    if err := json.Unmarshal(data, &s); err == nil {
        return d.Set(s)
    }

    var n int64
    if err := json.Unmarshal(data, &n); err != nil {
        return fmt.Errorf("invalid duration %s", string(data))
    }
    *d = Duration(n)
    return nil
}

type Args struct {
    // IP on which the server will accept connections. Defaults to 0.0.0.0
    IP string
    // Port on which the HTTP server will accept connections. Defaults to 8888
    Port int
    // TCPPort on which persistent line connections are accepted. 0 disables it. Defaults to 8889
    TCPPort int
    // ReadSize allocated for gorilla-ws's buffer when a new connection is accepted. Defaults to 1024
    ReadSize int
    // WriteSize allocated for gorilla-ws's buffer when a new connection is accepted. Defaults to 1024
    WriteSize int
    // IgnoreOrigin and accept connections from any source (mostly for development)
    IgnoreOrigin bool
    // CertFile and KeyFile enable TLS on both the HTTP server and the TCP listener
    CertFile string
    KeyFile string
    // CredentialFile where users are registered. Defaults to data/users.txt
    CredentialFile string
    // Hasher for new passwords: sha256 or argon2id. Defaults to sha256
    Hasher string
    // HistoryFile where messages are recorded. Empty disables the history. Defaults to data/history.txt
    HistoryFile string
    // HistoryCmd is the program that records the history. If empty, the server writes the file itself
    HistoryCmd string
    // HistoryQueue is how many history lines may be waiting to be written. Defaults to 1024
    HistoryQueue int
    // TokenDeadline is for how long an unused token stays valid. Defaults to 30m
    TokenDeadline Duration
    // KeepAlive is the delay between checks of whether users are alive. Defaults to 1m
    KeepAlive Duration
    // PollTimeout is the longest a poll may wait. Defaults to 30s
    PollTimeout Duration
    // IdleTimeout after which a quiet websocket gets pinged. Defaults to 1m
    IdleTimeout Duration
    // MaxMessageLen is the longest message, in characters. Defaults to 500
    MaxMessageLen int
    // DebugLog enables debug messages
    DebugLog bool
}

// defaultArgs retrieve the arguments used when nothing is configured.
func defaultArgs() Args {
    return Args {
        IP: "0.0.0.0",
        Port: 8888,
        TCPPort: 8889,
        ReadSize: 1024,
        WriteSize: 1024,
        IgnoreOrigin: true,
        CredentialFile: "data/users.txt",
        Hasher: "sha256",
        HistoryFile: "data/history.txt",
        HistoryQueue: 1024,
        TokenDeadline: Duration(time.Minute * 30),
        KeepAlive: Duration(time.Minute),
        PollTimeout: Duration(time.Second * 30),
        IdleTimeout: Duration(time.Minute),
        MaxMessageLen: 500,
    }
}

// newFlagSet bind every argument in `args` to a flag. The current values
// of `args` are used as the defaults.
func newFlagSet(args *Args) *flag.FlagSet {
    fs := flag.NewFlagSet("chat-server", flag.ContinueOnError)

    fs.StringVar(&args.IP, "IP", args.IP, "IP on which the server will accept connections")
    fs.IntVar(&args.Port, "Port", args.Port, "Port on which the HTTP server will accept connections")
    fs.IntVar(&args.TCPPort, "TCPPort", args.TCPPort, "Port for persistent line connections (0 disables it)")
    fs.IntVar(&args.ReadSize, "ReadSize", args.ReadSize, "ReadSize allocated for gorilla-ws's buffer when a new connection is accepted")
    fs.IntVar(&args.WriteSize, "WriteSize", args.WriteSize, "WriteSize allocated for gorilla-ws's buffer when a new connection is accepted")
    fs.BoolVar(&args.IgnoreOrigin, "IgnoreOrigin", args.IgnoreOrigin, "IgnoreOrigin and accept connections from any source (mostly for development)")
    fs.StringVar(&args.CertFile, "CertFile", args.CertFile, "TLS certificate (requires KeyFile)")
    fs.StringVar(&args.KeyFile, "KeyFile", args.KeyFile, "TLS private key (requires CertFile)")
    fs.StringVar(&args.CredentialFile, "CredentialFile", args.CredentialFile, "File where users are registered")
    fs.StringVar(&args.Hasher, "Hasher", args.Hasher, "Hasher for new passwords (sha256 or argon2id)")
    fs.StringVar(&args.HistoryFile, "HistoryFile", args.HistoryFile, "File where messages are recorded (empty disables the history)")
    fs.StringVar(&args.HistoryCmd, "HistoryCmd", args.HistoryCmd, "Program that records the history (e.g., chat-history)")
    fs.IntVar(&args.HistoryQueue, "HistoryQueue", args.HistoryQueue, "How many history lines may be waiting to be written")
    fs.Var(&args.TokenDeadline, "TokenDeadline", "For how long an unused token stays valid")
    fs.Var(&args.KeepAlive, "KeepAlive", "Delay between checks of whether users are alive")
    fs.Var(&args.PollTimeout, "PollTimeout", "Longest a poll may wait")
    fs.Var(&args.IdleTimeout, "IdleTimeout", "For how long a websocket may stay quiet before being pinged")
    fs.IntVar(&args.MaxMessageLen, "MaxMessageLen", args.MaxMessageLen, "Longest message, in characters")
    fs.BoolVar(&args.DebugLog, "DebugLog", args.DebugLog, "Enable debug messages")

    return fs
}

// parseArgs either from the command line or from the supplied JSON file.
//
// If a JSON file is supplied, it's used as the default parameters, which
// may be overridden by CLI-supplied arguments.
func parseArgs(argv []string) (Args, error) {
    var confFile string

    args := defaultArgs()
    fs := newFlagSet(&args)
    fs.StringVar(&confFile, "confFile", "", "JSON file with the configuration options. May be overridden by other CLI arguments")
    fs.SetOutput(io.Discard)

    err := fs.Parse(argv)
    if err != nil {
        return Args{}, err
    }

    if len(confFile) != 0 {
        jsonArgs := defaultArgs()

        f, err := os.Open(confFile)
        if err != nil {
            return Args{}, fmt.Errorf("couldn't open the configuration file '%s': %w", confFile, err)
        }
        defer f.Close()

        dec := json.NewDecoder(f)
        dec.DisallowUnknownFields()
        err = dec.Decode(&jsonArgs)
        if err != nil {
            return Args{}, fmt.Errorf("couldn't decode the configuration file '%s': %w", confFile, err)
        }

        // Walk over every set argument to override the JSON file
        override := newFlagSet(&jsonArgs)
        fs.Visit(func(f *flag.Flag) {
            if f.Name == "confFile" {
                return
            }

            log.Printf("Overriding JSON's %s with CLI's value (%s)", f.Name, f.Value.String())
            override.Set(f.Name, f.Value.String())
        })

        args = jsonArgs
    }

    if (len(args.CertFile) == 0) != (len(args.KeyFile) == 0) {
        return Args{}, fmt.Errorf("both CertFile and KeyFile must be supplied to enable TLS")
    }

    return args, nil
}

// logArgs print the options used by the server.
func logArgs(args Args) {
    log.Printf("Starting server with options:")
    log.Printf("  - IP: %+v", args.IP)
    log.Printf("  - Port: %+v", args.Port)
    log.Printf("  - TCPPort: %+v", args.TCPPort)
    log.Printf("  - ReadSize: %+v", args.ReadSize)
    log.Printf("  - WriteSize: %+v", args.WriteSize)
    log.Printf("  - IgnoreOrigin: %+v", args.IgnoreOrigin)
    log.Printf("  - TLS: %+v", len(args.CertFile) > 0)
    log.Printf("  - CredentialFile: %+v", args.CredentialFile)
    log.Printf("  - Hasher: %+v", args.Hasher)
    log.Printf("  - HistoryFile: %+v", args.HistoryFile)
    log.Printf("  - HistoryCmd: %+v", args.HistoryCmd)
    log.Printf("  - TokenDeadline: %s", args.TokenDeadline.String())
    log.Printf("  - PollTimeout: %s", args.PollTimeout.String())
}
