package credstore

import (
    crand "crypto/rand"
    "crypto/sha256"
    "crypto/subtle"
    "encoding/base64"
    "strings"

    "golang.org/x/crypto/argon2"
)

// saltSize is the number of random bytes in a salt.
const saltSize = 16

// argon2Prefix marks hashes generated by `Argon2Hasher`.
const argon2Prefix = "argon2id$"

// Parameters for argon2id.
const (
    argon2Time    = 1
    argon2Memory  = 64 * 1024
    argon2Threads = 4
    argon2KeyLen  = 32
)

// Hasher computes a one-way digest of a salted password.
//
// The digest must be safe to store as plain text in the credential file,
// so it may not contain a ':' nor a line break.
type Hasher interface {
    Hash(password, salt string) string
}

// SHA256Hasher digests `salt || password` with SHA-256, encoded as base64.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password, salt string) string {
    h := sha256.New()
    h.Write([]byte(salt))
    h.Write([]byte(password))
    return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Argon2Hasher derives the digest with argon2id. Digests are prefixed by
// "argon2id$", so they may coexist with SHA-256 digests in the same file.
type Argon2Hasher struct{}

func (Argon2Hasher) Hash(password, salt string) string {
    key := argon2.IDKey([]byte(password), []byte(salt), argon2Time,
            argon2Memory, argon2Threads, argon2KeyLen)
    return argon2Prefix + base64.StdEncoding.EncodeToString(key)
}

// HasherByName retrieve the hasher named `name` ("sha256" or "argon2id").
func HasherByName(name string) (Hasher, bool) {
    switch strings.ToLower(name) {
    case "", "sha256":
        return SHA256Hasher{}, true
    case "argon2id", "argon2":
        return Argon2Hasher{}, true
    default:
        return nil, false
    }
}

// newSalt generate a random salt, encoded as base64.
func newSalt() (string, error) {
    var buf [saltSize]byte

    _, err := crand.Read(buf[:])
    if err != nil {
        return "", err
    }
    return base64.StdEncoding.EncodeToString(buf[:]), nil
}

// verifyPassword recompute the digest of `password`, using the algorithm
// that generated `stored`, and compare both in constant time.
func verifyPassword(password, salt, stored string) bool {
    var hasher Hasher = SHA256Hasher{}
    if strings.HasPrefix(stored, argon2Prefix) {
        hasher = Argon2Hasher{}
    }

    digest := hasher.Hash(password, salt)
    return subtle.ConstantTimeCompare([]byte(digest), []byte(stored)) == 1
}
