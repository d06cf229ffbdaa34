package service

import (
	"regexp"

	"github.com/google/uuid"
)

// MaxIdentifierLength bounds application codes, action ids, resource ids and instance ids.
const MaxIdentifierLength = 64

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/-]*$`)

// IsIdentifier reports whether s is a valid application-scoped identifier.
func IsIdentifier(s string) bool {
	return len(s) <= MaxIdentifierLength && identifierPattern.MatchString(s)
}

// parseBodyID parses an identifier supplied in a request body.
func parseBodyID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ValidationError{Message: field + " must be a valid UUID"}
	}
	return id, nil
}

// parsePathID parses an identifier taken from a URL; malformed ids cannot exist.
func parsePathID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}
