// Package credstore implements a file-backed credential store.
//
// Credentials are kept one per line, as three colon separated fields:
//
//     name:salt:hash
//
// Every access to the file goes through a single store-wide lock, so the
// check for an existing name and the append of a new record happen
// atomically with respect to any other registration or authentication.
// Lookups scan the whole file, which is fine for the expected number of
// users.
package credstore

import (
    "bufio"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "strings"
    "sync"
)

// recordFields is the number of fields in a valid record.
const recordFields = 3

// Default bounds for usernames and passwords.
const (
    defMinNameLen     = 3
    defMaxNameLen     = 20
    defMinPasswordLen = 4
    defMaxPasswordLen = 50
)

// Conf configures a credential Store.
type Conf struct {
    // Path to the credential file. Its directory is created on the first
    // registration.
    Path string

    // Bounds, in characters, for usernames and passwords.
    MinNameLen     int
    MaxNameLen     int
    MinPasswordLen int
    MaxPasswordLen int

    // Hasher for new records. Existing records are verified with whichever
    // algorithm generated them.
    Hasher Hasher
}

// DefaultConf retrieve the default configuration for a store kept at
// `path`.
func DefaultConf(path string) Conf {
    return Conf {
        Path: path,
        MinNameLen: defMinNameLen,
        MaxNameLen: defMaxNameLen,
        MinPasswordLen: defMinPasswordLen,
        MaxPasswordLen: defMaxPasswordLen,
        Hasher: SHA256Hasher{},
    }
}

// record is a single entry in the credential file.
type record struct {
    name string
    salt string
    hash string
}

// parseRecord parse a line of the credential file. Lines with the wrong
// number of fields are reported as invalid.
func parseRecord(line string) (record, bool) {
    parts := strings.Split(line, ":")
    if len(parts) != recordFields {
        return record{}, false
    }
    return record { name: parts[0], salt: parts[1], hash: parts[2] }, true
}

func (r record) String() string {
    return r.name + ":" + r.salt + ":" + r.hash
}

// Store keeps credentials in a file.
type Store struct {
    conf Conf

    // mutex guards every access to the credential file.
    mutex sync.Mutex
}

// New create a store configured as per `conf`. Unset bounds and hasher
// are replaced by their defaults.
func New(conf Conf) *Store {
    def := DefaultConf(conf.Path)

    if conf.MinNameLen <= 0 {
        conf.MinNameLen = def.MinNameLen
    }
    if conf.MaxNameLen <= 0 {
        conf.MaxNameLen = def.MaxNameLen
    }
    if conf.MinPasswordLen <= 0 {
        conf.MinPasswordLen = def.MinPasswordLen
    }
    if conf.MaxPasswordLen <= 0 {
        conf.MaxPasswordLen = def.MaxPasswordLen
    }
    if conf.Hasher == nil {
        conf.Hasher = def.Hasher
    }

    return &Store { conf: conf }
}

// Register validate and store a new user.
//
// Validation happens before the file is touched. A name that's already
// stored results in ErrUserExists.
func (s *Store) Register(name, password string) error {
    name = strings.TrimSpace(name)
    if err := validateName(s.conf, name); err != nil {
        return err
    }
    if err := validatePassword(s.conf, password); err != nil {
        return err
    }

    s.mutex.Lock()
    defer s.mutex.Unlock()

    _, found, err := s.find(name)
    if err != nil {
        return err
    } else if found {
        return ErrUserExists
    }

    salt, err := newSalt()
    if err != nil {
        return fmt.Errorf("generate salt: %w", err)
    }

    rec := record {
        name: name,
        salt: salt,
        hash: s.conf.Hasher.Hash(password, salt),
    }
    return s.append(rec)
}

// Authenticate check `password` against the stored credentials of `name`.
//
// Returns ErrUserNotFound if there's no such user, or
// ErrIncorrectPassword if the password doesn't match.
func (s *Store) Authenticate(name, password string) error {
    name = strings.TrimSpace(name)
    if err := validateName(s.conf, name); err != nil {
        return err
    }

    s.mutex.Lock()
    defer s.mutex.Unlock()

    rec, found, err := s.find(name)
    if err != nil {
        return err
    } else if !found {
        return ErrUserNotFound
    }

    if !verifyPassword(password, rec.salt, rec.hash) {
        return ErrIncorrectPassword
    }
    return nil
}

// Len retrieve the number of valid records in the file.
func (s *Store) Len() (int, error) {
    s.mutex.Lock()
    defer s.mutex.Unlock()

    count := 0
    err := s.scan(func(record) bool {
        count++
        return true
    })
    return count, err
}

// scan call `fn` for every valid record in the file, until it returns
// false. A missing file has no records. The store must be locked.
func (s *Store) scan(fn func(record) bool) error {
    f, err := os.Open(s.conf.Path)
    if errors.Is(err, fs.ErrNotExist) {
        return nil
    } else if err != nil {
        return fmt.Errorf("open credentials: %w", err)
    }
    defer f.Close()

    scanner := bufio.NewScanner(f)
    for scanner.Scan() {
        rec, ok := parseRecord(scanner.Text())
        if !ok {
            // Corrupt line.
            continue
        }
        if !fn(rec) {
            return nil
        }
    }

    if err := scanner.Err(); err != nil {
        return fmt.Errorf("read credentials: %w", err)
    }
    return nil
}

// find look for the record of `name`. The store must be locked.
func (s *Store) find(name string) (record, bool, error) {
    var rec record
    var found bool

    err := s.scan(func(r record) bool {
        if r.name == name {
            rec = r
            found = true
            return false
        }
        return true
    })

    return rec, found, err
}

// append a record to the end of the file. The store must be locked.
func (s *Store) append(rec record) error {
    if dir := filepath.Dir(s.conf.Path); dir != "" {
        if err := os.MkdirAll(dir, 0o700); err != nil {
            return fmt.Errorf("create credentials dir: %w", err)
        }
    }

    f, err := os.OpenFile(s.conf.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
    if err != nil {
        return fmt.Errorf("open credentials: %w", err)
    }

    _, err = f.WriteString(rec.String() + "\n")
    if cerr := f.Close(); err == nil {
        err = cerr
    }
    if err != nil {
        return fmt.Errorf("write credentials: %w", err)
    }

    return nil
}
