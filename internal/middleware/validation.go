package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxContentBytes bounds a single user message.
const MaxContentBytes = 100000

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(strings.TrimSpace(content)) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateModel validates a model identifier.
func ValidateModel(model string) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if len(model) > 128 {
		return errors.New("model exceeds maximum length")
	}
	if strings.IndexFunc(model, unicode.IsSpace) >= 0 {
		return errors.New("model cannot contain whitespace")
	}
	if !utf8.ValidString(model) {
		return errors.New("model must be valid UTF-8")
	}
	return nil
}
