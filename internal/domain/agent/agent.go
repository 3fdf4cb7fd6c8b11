// Package agent defines the Agent domain entity.
package agent

import "time"

// Kind classifies the registrant behind an address.
type Kind string

const (
	KindHuman       Kind = "human"
	KindAgent       Kind = "agent"
	KindUnspecified Kind = "unspecified"
)

// ParseKind maps the source's raw agentType integer to a Kind. The source
// uses 0 ambiguously (sometimes "agent", sometimes "unknown"); absent an
// explicit disambiguating context, 0 surfaces as Unspecified and
// classification is left to the caller rather than guessed at here.
func ParseKind(raw int, disambiguatedAsAgent bool) Kind {
	switch raw {
	case 1:
		return KindHuman
	case 2:
		return KindAgent
	case 0:
		if disambiguatedAsAgent {
			return KindAgent
		}
		return KindUnspecified
	default:
		return KindUnspecified
	}
}

// Agent is an address-identified participant in the network.
type Agent struct {
	Address            string    `json:"address"`
	Kind               Kind      `json:"kind"`
	RegisteredAt       time.Time `json:"registeredAt"`
	PostCount          int       `json:"postCount"`
	FollowerCount      int       `json:"followerCount"`
	ActiveCommunities  []string  `json:"activeCommunities"`
	UpvotesReceived    int       `json:"upvotesReceived"`
	DownvotesReceived  int       `json:"downvotesReceived"`
	Name               string    `json:"name,omitempty"`
}

// DaysSinceRegistration returns the whole days elapsed between RegisteredAt
// and now, never negative.
func (a Agent) DaysSinceRegistration(now time.Time) int {
	d := int(now.Sub(a.RegisteredAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
