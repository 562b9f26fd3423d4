package http

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxMessageLength bounds inbound messages.
const DefaultMaxMessageLength = 10000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

// ValidationError is a user-facing validation message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateMessage checks an inbound message value as decoded from JSON.
func ValidateMessage(v any, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if v == nil {
		return "", &ValidationError{"Message is required"}
	}
	msg, ok := v.(string)
	if !ok {
		return "", &ValidationError{"Message must be a string"}
	}
	if strings.TrimSpace(msg) == "" {
		return "", &ValidationError{"Message cannot be empty"}
	}
	if len([]rune(msg)) > maxLen {
		return "", &ValidationError{fmt.Sprintf("Message too long (max %d characters)", maxLen)}
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(msg) {
			return "", &ValidationError{"Message contains potentially dangerous content"}
		}
	}
	return msg, nil
}
