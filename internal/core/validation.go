// internal/core/validation.go
package core

import (
	"regexp"
)

// Regular expression for valid table/column names (alphanumeric + underscore)
var nameValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Whole-word, case-insensitive match for an explicit LIMIT in an utterance.
// Deliberately a word match, not a substring match: "unlimited" or "limitless"
// in a question must not suppress the default row cap.
var limitWordRegex = regexp.MustCompile(`(?i)\blimit\b`)

// Hostnames: letters, digits, dots and hyphens. Loose on purpose; the probe
// is the authority on whether the host is actually reachable.
var hostValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// IsValidIdentifier checks if a string is a valid identifier (e.g., table_name, column_name)
// Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) > 0 && len(name) <= 64
}

// IsValidHost checks a hostname or IP literal for use in a local connection spec.
func IsValidHost(host string) bool {
	return hostValidationRegex.MatchString(host) && len(host) > 0 && len(host) <= 255
}

// IsValidPort checks a TCP port number.
func IsValidPort(port int) bool {
	return port > 0 && port <= 65535
}

// HasExplicitLimit reports whether the utterance already contains the word
// "limit" (any case), meaning the user chose their own row cap.
func HasExplicitLimit(utterance string) bool {
	return limitWordRegex.MatchString(utterance)
}
