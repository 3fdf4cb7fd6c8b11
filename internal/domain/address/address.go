// Package address provides canonical-address and basename validation shared
// by every component that ingests addresses or names from either data source.
package address

import (
	"regexp"
	"strings"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	namePattern    = regexp.MustCompile(`^[a-z0-9-]+\.base\.eth$`)
)

// Normalize lowercases addr. All map keys across the engine use this form;
// callers must normalize before using an address as a graph node id.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr (after normalization) matches the 20-byte
// hex-address shape.
func Valid(addr string) bool {
	return addressPattern.MatchString(Normalize(addr))
}

// ValidName reports whether name (after lowercasing) matches the basename
// shape `<label>.base.eth`.
func ValidName(name string) bool {
	return namePattern.MatchString(strings.ToLower(strings.TrimSpace(name)))
}

// ReverseNode returns the input fed into the reverse-resolution namehash:
// the address without its 0x prefix, with the registry's configured
// reverse suffix appended.
func ReverseNode(addr, reverseSuffix string) string {
	a := Normalize(addr)
	return strings.TrimPrefix(a, "0x") + reverseSuffix
}

// LooksLikeAddress reports whether input is shaped like an address rather
// than a name, without validating its hex digits strictly. Used by
// resolveNameOrAddress to decide which path to try first.
func LooksLikeAddress(input string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "0x")
}
