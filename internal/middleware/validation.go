package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateConversationKey validates an external conversation key.
func ValidateConversationKey(key string) error {
	if len(key) == 0 {
		return errors.New("conversation key cannot be empty")
	}
	if len(key) > 128 {
		return errors.New("conversation key exceeds maximum length")
	}
	if !utf8.ValidString(key) {
		return errors.New("conversation key must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a runtime session ID.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("session ID exceeds maximum length")
	}
	return nil
}

// ValidateAnswerText validates free-form answer text.
func ValidateAnswerText(text string) error {
	if len(text) > 10000 {
		return errors.New("answer exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("answer must be valid UTF-8")
	}
	return nil
}
