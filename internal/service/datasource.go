package service

import (
	"context"
	"time"

	"github.com/basegraph/intelengine/internal/domain/address"
	"github.com/basegraph/intelengine/internal/domain/agent"
	"github.com/basegraph/intelengine/internal/domain/attestation"
	"github.com/basegraph/intelengine/internal/domain/citation"
	communitypkg "github.com/basegraph/intelengine/internal/domain/community"
	"github.com/basegraph/intelengine/internal/domain/content"
	"github.com/basegraph/intelengine/internal/domain/voting"
	"github.com/basegraph/intelengine/internal/port/eventsource"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// DataSource is the common read surface C6/C7 pull from, regardless of
// whether it is backed by the indexed view or a raw event scan. A method
// returns either data or an error, never both: a failed indexed query
// yields nil data, and a partial event scan yields what it gathered with a
// nil error. The router in IntelligenceService inspects the error to
// decide whether to fall back.
type DataSource interface {
	Agents(ctx context.Context, community string) ([]agent.Agent, error)
	Contents(ctx context.Context, community string) ([]content.Content, error)
	ActiveAttestations(ctx context.Context) ([]attestation.Attestation, error)
	VotingRelations(ctx context.Context) ([]voting.Relation, error)
	Citations(ctx context.Context) ([]citation.Citation, error)
}

// indexedDataSource implements DataSource over the indexed view (C1).
type indexedDataSource struct {
	client indexedquery.Client
}

func newIndexedDataSource(client indexedquery.Client) *indexedDataSource {
	return &indexedDataSource{client: client}
}

type agentRecord struct {
	Address           string   `json:"address"`
	Kind              int      `json:"agentType"`
	RegisteredAt      int64    `json:"registeredAt"`
	PostCount         int      `json:"postCount"`
	FollowerCount     int      `json:"followerCount"`
	ActiveCommunities []string `json:"activeCommunities"`
	UpvotesReceived   int      `json:"upvotesReceived"`
	DownvotesReceived int      `json:"downvotesReceived"`
}

func (d *indexedDataSource) Agents(ctx context.Context, community string) ([]agent.Agent, error) {
	sel := indexedquery.Selection{}
	if community != "" {
		sel.Where = map[string]any{"activeCommunities_contains": community}
	}
	var records []agentRecord
	if err := d.client.Query(ctx, indexedquery.RecordAgents, sel, &records); err != nil {
		return nil, err
	}
	return toDomainAgents(records), nil
}

func toDomainAgents(records []agentRecord) []agent.Agent {
	out := make([]agent.Agent, 0, len(records))
	for _, r := range records {
		out = append(out, agent.Agent{
			Address:           address.Normalize(r.Address),
			Kind:              agent.ParseKind(r.Kind, false),
			RegisteredAt:      unixTime(r.RegisteredAt),
			PostCount:         r.PostCount,
			FollowerCount:     r.FollowerCount,
			ActiveCommunities: r.ActiveCommunities,
			UpvotesReceived:   r.UpvotesReceived,
			DownvotesReceived: r.DownvotesReceived,
		})
	}
	return out
}

type contentRecord struct {
	CID       string   `json:"cid"`
	Author    string   `json:"author"`
	Community string   `json:"community"`
	Upvotes   int      `json:"upvotes"`
	Downvotes int      `json:"downvotes"`
	Active    bool     `json:"active"`
	Parent    string   `json:"parent"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

func (d *indexedDataSource) Contents(ctx context.Context, community string) ([]content.Content, error) {
	sel := indexedquery.Selection{}
	if community != "" {
		sel.Where = map[string]any{"community": community}
	}
	var records []contentRecord
	if err := d.client.Query(ctx, indexedquery.RecordContents, sel, &records); err != nil {
		return nil, err
	}
	out := make([]content.Content, 0, len(records))
	for _, r := range records {
		out = append(out, content.Content{
			CID:       r.CID,
			Author:    address.Normalize(r.Author),
			Community: communitypkg.Canonicalize(r.Community),
			Upvotes:   r.Upvotes,
			Downvotes: r.Downvotes,
			Active:    r.Active,
			Parent:    r.Parent,
			Tags:      r.Tags,
			Timestamp: unixTime(r.Timestamp),
		})
	}
	return out, nil
}

type attestationRecord struct {
	Attester  string `json:"attester"`
	Subject   string `json:"subject"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	Active    bool   `json:"active"`
}

func (d *indexedDataSource) ActiveAttestations(ctx context.Context) ([]attestation.Attestation, error) {
	sel := indexedquery.Selection{Where: map[string]any{"active": true}}
	var records []attestationRecord
	if err := d.client.Query(ctx, indexedquery.RecordAttestations, sel, &records); err != nil {
		return nil, err
	}
	out := make([]attestation.Attestation, 0, len(records))
	for _, r := range records {
		out = append(out, attestation.Attestation{
			Attester:  address.Normalize(r.Attester),
			Subject:   address.Normalize(r.Subject),
			Reason:    r.Reason,
			Timestamp: unixTime(r.Timestamp),
		})
	}
	return out, nil
}

type votingRelationRecord struct {
	Voter     string `json:"voter"`
	Author    string `json:"author"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

func (d *indexedDataSource) VotingRelations(ctx context.Context) ([]voting.Relation, error) {
	var records []votingRelationRecord
	if err := d.client.Query(ctx, indexedquery.RecordVotingRelations, indexedquery.Selection{}, &records); err != nil {
		return nil, err
	}
	out := make([]voting.Relation, 0, len(records))
	for _, r := range records {
		out = append(out, voting.Relation{
			Voter:     address.Normalize(r.Voter),
			Author:    address.Normalize(r.Author),
			Upvotes:   r.Upvotes,
			Downvotes: r.Downvotes,
		})
	}
	return out, nil
}

type citationRecord struct {
	SourceCID string `json:"sourceCid"`
	TargetCID string `json:"targetCid"`
	Timestamp int64  `json:"timestamp"`
}

func (d *indexedDataSource) Citations(ctx context.Context) ([]citation.Citation, error) {
	var records []citationRecord
	if err := d.client.Query(ctx, indexedquery.RecordCitations, indexedquery.Selection{}, &records); err != nil {
		return nil, err
	}
	out := make([]citation.Citation, 0, len(records))
	for _, r := range records {
		out = append(out, citation.Citation{
			SourceCID: r.SourceCID,
			TargetCID: r.TargetCID,
			Timestamp: unixTime(r.Timestamp),
		})
	}
	return out, nil
}

// eventDataSource implements DataSource over the raw event log (C2),
// composing creation/revocation tuples into the active set itself.
type eventDataSource struct {
	scanner  *EventScanner
	fromBlock int64
}

func newEventDataSource(scanner *EventScanner, fromBlock int64) *eventDataSource {
	return &eventDataSource{scanner: scanner, fromBlock: fromBlock}
}

func (d *eventDataSource) Agents(ctx context.Context, community string) ([]agent.Agent, error) {
	result, err := d.scanner.Scan(ctx, eventsource.Registered, d.fromBlock)
	if err != nil {
		return nil, err
	}
	out := make([]agent.Agent, 0, len(result.Events))
	for _, e := range result.Events {
		out = append(out, agent.Agent{
			Address:      address.Normalize(e.Agent),
			Kind:         agent.ParseKind(e.AgentType, false),
			RegisteredAt: e.Timestamp,
		})
	}
	return out, nil
}

func (d *eventDataSource) Contents(ctx context.Context, community string) ([]content.Content, error) {
	result, err := d.scanner.Scan(ctx, eventsource.ContentPublished, d.fromBlock)
	if err != nil {
		return nil, err
	}
	out := make([]content.Content, 0, len(result.Events))
	for _, e := range result.Events {
		c := communitypkg.Canonicalize(e.Community)
		if community != "" && c != community {
			continue
		}
		out = append(out, content.Content{
			CID:       e.CID,
			Author:    address.Normalize(e.Author),
			Community: c,
			Active:    true,
			Timestamp: e.Timestamp,
		})
	}
	return out, nil
}

func (d *eventDataSource) ActiveAttestations(ctx context.Context) ([]attestation.Attestation, error) {
	created, err := d.scanner.Scan(ctx, eventsource.AttestationCreated, d.fromBlock)
	if err != nil {
		return nil, err
	}
	revoked, err := d.scanner.Scan(ctx, eventsource.AttestationRevoked, d.fromBlock)
	if err != nil {
		return nil, err
	}

	creates := make([]attestation.Attestation, 0, len(created.Events))
	for _, e := range created.Events {
		creates = append(creates, attestation.Attestation{
			Attester:  address.Normalize(e.Attester),
			Subject:   address.Normalize(e.Subject),
			Reason:    e.Reason,
			Timestamp: e.Timestamp,
		})
	}
	revokes := make([]attestation.Revocation, 0, len(revoked.Events))
	for _, e := range revoked.Events {
		revokes = append(revokes, attestation.Revocation{
			Attester:  address.Normalize(e.Attester),
			Subject:   address.Normalize(e.Subject),
			Timestamp: e.Timestamp,
		})
	}
	return attestation.ComposeActive(creates, revokes), nil
}

func (d *eventDataSource) VotingRelations(ctx context.Context) ([]voting.Relation, error) {
	result, err := d.scanner.Scan(ctx, eventsource.VoteCast, d.fromBlock)
	if err != nil {
		return nil, err
	}
	agg := make(map[[2]string]*voting.Relation)
	order := make([][2]string, 0)

	// Voting relations aggregate by (voter, author), but VoteCast only
	// carries (voter, cid); the author must be joined from ContentPublished.
	contents, err := d.Contents(ctx, "")
	if err != nil {
		return nil, err
	}
	authorOf := make(map[string]string, len(contents))
	for _, c := range contents {
		authorOf[c.CID] = c.Author
	}

	for _, e := range result.Events {
		author, ok := authorOf[e.CID]
		if !ok {
			continue
		}
		voter := address.Normalize(e.Voter)
		key := [2]string{voter, author}
		r, ok := agg[key]
		if !ok {
			r = &voting.Relation{Voter: voter, Author: author}
			agg[key] = r
			order = append(order, key)
		}
		if e.VoteType > 0 {
			r.Upvotes++
		} else {
			r.Downvotes++
		}
	}

	out := make([]voting.Relation, 0, len(order))
	for _, key := range order {
		out = append(out, *agg[key])
	}
	return out, nil
}

func (d *eventDataSource) Citations(ctx context.Context) ([]citation.Citation, error) {
	// Citations are not in the required event set, so the engine has no
	// event-log representation of citation edges: the fallback path
	// returns an empty citation graph rather than fabricating one.
	return nil, nil
}
