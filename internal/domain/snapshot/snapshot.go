// Package snapshot defines the CommunityDaySnapshot domain entity used by
// the trending-communities query.
package snapshot

// CommunityDaySnapshot is a per-community daily rollup.
type CommunityDaySnapshot struct {
	Community      string `json:"community"`
	DayTimestamp   int64  `json:"dayTimestamp"`
	PostsInPeriod  int    `json:"postsInPeriod"`
	VotesInPeriod  int    `json:"votesInPeriod"`
}
