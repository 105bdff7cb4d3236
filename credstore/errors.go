package credstore

import (
    "errors"
    "fmt"
)

var (
    // ErrUserExists is returned when registering a name already in use.
    ErrUserExists = errors.New("user already exists")
    // ErrUserNotFound is returned when authenticating an unknown name.
    ErrUserNotFound = errors.New("user not found")
    // ErrIncorrectPassword is returned when the password doesn't match.
    ErrIncorrectPassword = errors.New("incorrect password")
)

// ValidationError reports a username or password that doesn't satisfy the
// store's rules. Validation errors never reach the credential file.
type ValidationError struct {
    Field   string // "username" or "password"
    Message string // human readable explanation
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
    var ve *ValidationError
    return errors.As(err, &ve)
}
