package session

import (
	"errors"
	"regexp"
)

// ErrInvalidID is reported when a session id contains characters that are
// unsafe to use as a storage key.
var ErrInvalidID = errors.New("invalid session id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9,-]{1,256}$`)

// ValidID reports whether id only contains letters, digits, ',' and '-'
// and is at most 256 characters long. Every UUID and the ids issued by
// common session runtimes satisfy it.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
