// Package community defines the Community domain entity.
package community

import (
	"strings"
	"time"
)

// Community is a topical grouping of content, keyed by a canonicalized slug.
type Community struct {
	Slug          string    `json:"slug"`
	TotalPosts    int       `json:"totalPosts"`
	UniqueAuthors int       `json:"uniqueAuthors"`
	TotalScore    int       `json:"totalScore"`
	LastPostAt    time.Time `json:"lastPostAt"`
}

// Canonicalize lowercases a community slug; all graph and map keys use
// this form.
func Canonicalize(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
