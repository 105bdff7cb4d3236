package credstore

import (
    "fmt"
    "regexp"
    "strings"
    "unicode/utf8"
)

// namePattern restricts the characters of a username.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// validateName check the (already trimmed) username against the bounds
// configured in `conf`.
func validateName(conf Conf, name string) error {
    if len(name) == 0 {
        return &ValidationError { Field: "username", Message: "must not be empty" }
    }

    n := utf8.RuneCountInString(name)
    if n < conf.MinNameLen || n > conf.MaxNameLen {
        return &ValidationError {
            Field: "username",
            Message: fmt.Sprintf("must have between %d and %d characters",
                    conf.MinNameLen, conf.MaxNameLen),
        }
    }

    if !namePattern.MatchString(name) {
        return &ValidationError {
            Field: "username",
            Message: "may only contain letters, digits and underscores",
        }
    }

    return nil
}

// validatePassword check the password against the bounds configured in
// `conf`.
func validatePassword(conf Conf, password string) error {
    if len(strings.TrimSpace(password)) == 0 {
        return &ValidationError { Field: "password", Message: "must not be empty" }
    }

    n := utf8.RuneCountInString(password)
    if n < conf.MinPasswordLen || n > conf.MaxPasswordLen {
        return &ValidationError {
            Field: "password",
            Message: fmt.Sprintf("must have between %d and %d characters",
                    conf.MinPasswordLen, conf.MaxPasswordLen),
        }
    }

    return nil
}
