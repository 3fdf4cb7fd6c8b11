// Package eventsource defines the port interface for the paginated raw
// event log (C2's external collaborator).
package eventsource

import (
	"context"
	"time"
)

// Name identifies one of the required event types.
type Name string

const (
	ContentPublished   Name = "ContentPublished"
	AttestationCreated Name = "AttestationCreated"
	AttestationRevoked Name = "AttestationRevoked"
	VoteCast           Name = "VoteCast"
	Followed           Name = "Followed"
	Registered         Name = "Registered"
)

// RawEvent is one decoded log entry. Fields are a superset covering every
// Name; a given event populates only the fields relevant to its kind.
type RawEvent struct {
	Name        Name
	Block       uint64
	LogIndex    uint32
	Timestamp   time.Time
	CID         string
	Author      string
	Community   string
	ContentType string
	Attester    string
	Subject     string
	Reason      string
	Voter       string
	VoteType    int
	Follower    string
	Followed2   string // the followed agent; named to avoid shadowing the event const
	Agent       string
	AgentType   int
}

// Source is a paginated log stream filtered by event name and block
// range. Only block ordering and decodability are guaranteed; missing or
// over-range chunks are tolerated by the caller.
type Source interface {
	// HeadBlock returns the current chain head.
	HeadBlock(ctx context.Context) (uint64, error)

	// FetchChunk returns every event of name within [fromBlock, toBlock]
	// (inclusive), in block order. An error here is treated by the
	// caller as a skippable chunk failure, not a fatal one.
	FetchChunk(ctx context.Context, name Name, fromBlock, toBlock uint64) ([]RawEvent, error)
}
