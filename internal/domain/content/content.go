// Package content defines the Content (post) domain entity.
package content

import "time"

// Content is a single piece of content-addressed content published by an
// Agent into a Community.
type Content struct {
	CID       string    `json:"cid"`
	Author    string    `json:"author"`
	Community string    `json:"community"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	Active    bool      `json:"active"`
	Parent    string    `json:"parent,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Score is upvotes minus downvotes, computed fresh at every observation
// point rather than stored.
func (c Content) Score() int {
	return c.Upvotes - c.Downvotes
}

// IsReply reports whether this content has a parent pointer.
func (c Content) IsReply() bool {
	return c.Parent != ""
}
