// Package indexedquery defines the port interface for the read-only indexed
// view (C1's external collaborator).
package indexedquery

import "context"

// Selection carries the filter/sort/pagination parameters common to every
// indexed query: a `where` predicate map, ordering, and offset/limit.
type Selection struct {
	Where         map[string]any
	OrderBy       string
	OrderDir      string // "asc" or "desc"
	First         int
	Skip          int
}

// RecordSet is the record set name requested from the indexed view. Each
// value matches one of the record types the indexed view is required to
// expose.
type RecordSet string

const (
	RecordAgents               RecordSet = "agents"
	RecordCommunities          RecordSet = "communities"
	RecordContents             RecordSet = "contents"
	RecordAttestations         RecordSet = "attestations"
	RecordVotes                RecordSet = "votes"
	RecordVotingRelations      RecordSet = "votingRelations"
	RecordCommunityDaySnapshots RecordSet = "communityDaySnapshots"
	RecordCitations            RecordSet = "citations"
	RecordCitationCounts       RecordSet = "citationCounts"
)

// Client issues parameterised queries against the indexed view and reports
// transport/semantic errors distinctly. Implementations perform no
// retries and no caching; both are the caller's responsibility.
type Client interface {
	// Query runs set with the given selection and decodes matching
	// records into out, which must be a pointer to a slice of the shape
	// expected for set.
	Query(ctx context.Context, set RecordSet, sel Selection, out any) error

	// IsHealthy issues a fixed minimal probe and reports whether the
	// indexed view is currently reachable and answering.
	IsHealthy(ctx context.Context) bool
}
