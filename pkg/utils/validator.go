package utils

import "strings"

// IsEmpty reports whether the string is empty after trimming whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
