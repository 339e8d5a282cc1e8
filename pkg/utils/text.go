package utils

import "strings"

// CollapseWhitespace rewrites any run of whitespace (including newlines from
// DOM text) as a single space and trims the result.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
