package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanCode normalizes identifiers such as course codes, sections and venue rooms.
func CleanCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SquashSpaces collapses every run of whitespace in s into a single space.
func SquashSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
