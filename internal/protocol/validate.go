package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultNamePattern accepts 1 to 32 letters, digits, spaces, '_', '-' and '.'.
const DefaultNamePattern = `^[\p{L}\p{N}_\-. ]{1,32}$`

// Validator holds the name and size rules applied to client input.
type Validator struct {
	pattern  *regexp.Regexp
	maxBytes int
}

// NewValidator compiles pattern and returns a Validator enforcing maxBytes.
func NewValidator(pattern string, maxBytes int) (*Validator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile name pattern: %w", err)
	}
	return &Validator{pattern: re, maxBytes: maxBytes}, nil
}

// ValidName reports whether name, once trimmed, is non-empty and matches
// the configured pattern.
func (v *Validator) ValidName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	return v.pattern.MatchString(name)
}

// ValidRoomID is ValidName for ids taken verbatim from a URL, which must
// also carry no surrounding whitespace.
func (v *Validator) ValidRoomID(id string) bool {
	return id == strings.TrimSpace(id) && v.ValidName(id)
}

// TooLarge reports whether frame exceeds the byte ceiling.
func (v *Validator) TooLarge(frame []byte) bool {
	return len(frame) > v.maxBytes
}

// MaxBytes returns the byte ceiling.
func (v *Validator) MaxBytes() int {
	return v.maxBytes
}
