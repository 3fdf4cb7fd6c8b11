// Package graphql implements the indexedquery.Client port against a
// read-only GraphQL-like indexed view, reached over plain HTTP.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
	"github.com/basegraph/intelengine/internal/resilience"
)

// queryTemplates maps a RecordSet to the GraphQL document used to fetch it.
// Each document accepts $where, $orderBy, $orderDirection, $first, $skip.
var queryTemplates = map[indexedquery.RecordSet]string{
	indexedquery.RecordAgents:               "query($where: AgentFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { agents(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordCommunities:          "query($where: CommunityFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { communities(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordContents:             "query($where: ContentFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { contents(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordAttestations:         "query($where: AttestationFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { attestations(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordVotes:                "query($where: VoteFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { votes(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordVotingRelations:      "query($where: VotingRelationFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { votingRelations(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordCommunityDaySnapshots: "query($where: SnapshotFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { communityDaySnapshots(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordCitations:            "query($where: CitationFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { citations(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
	indexedquery.RecordCitationCounts:       "query($where: CitationCountFilter, $orderBy: String, $orderDirection: String, $first: Int, $skip: Int) { citationCounts(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) }",
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type responseEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client issues templated queries against the indexed view over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a Client pointed at endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Query implements indexedquery.Client.
func (c *Client) Query(ctx context.Context, set indexedquery.RecordSet, sel indexedquery.Selection, out any) error {
	tmpl, ok := queryTemplates[set]
	if !ok {
		return queryerror.New("graphql.Query", queryerror.InvalidInput, fmt.Errorf("unknown record set %q", set))
	}

	body := requestBody{
		Query: tmpl,
		Variables: map[string]any{
			"where":          sel.Where,
			"orderBy":        sel.OrderBy,
			"orderDirection": sel.OrderDir,
			"first":          sel.First,
			"skip":           sel.Skip,
		},
	}

	var payload responseEnvelope
	call := func() error {
		raw, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		payload = raw
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if err == resilience.ErrCircuitOpen {
			return queryerror.New("graphql.Query", queryerror.Transport, err)
		}
	} else {
		err = call()
	}
	if err != nil {
		return err // already wrapped as *queryerror.Error by doRequest
	}

	if len(payload.Errors) > 0 {
		return queryerror.New("graphql.Query", queryerror.Semantic, fmt.Errorf("%s", payload.Errors[0].Message))
	}

	if err := json.Unmarshal(payload.Data, out); err != nil {
		return queryerror.New("graphql.Query", queryerror.Decode, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, body requestBody) (responseEnvelope, error) {
	var env responseEnvelope

	encoded, err := json.Marshal(body)
	if err != nil {
		return env, queryerror.New("graphql.doRequest", queryerror.InvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return env, queryerror.New("graphql.doRequest", queryerror.Transport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return env, queryerror.New("graphql.doRequest", queryerror.Cancelled, ctx.Err())
		}
		return env, queryerror.New("graphql.doRequest", queryerror.Transport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, queryerror.New("graphql.doRequest", queryerror.Transport, err)
	}

	if resp.StatusCode >= 500 {
		return env, queryerror.New("graphql.doRequest", queryerror.Transport, fmt.Errorf("indexed view %d: %s", resp.StatusCode, data))
	}
	if resp.StatusCode >= 400 {
		return env, queryerror.New("graphql.doRequest", queryerror.Semantic, fmt.Errorf("indexed view %d: %s", resp.StatusCode, data))
	}

	if err := json.Unmarshal(data, &env); err != nil {
		return env, queryerror.New("graphql.doRequest", queryerror.Decode, err)
	}
	return env, nil
}

// IsHealthy issues a fixed minimal probe (the communityList query with a
// limit of 1) and reports whether the indexed view answers successfully.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var out []struct {
		Slug string `json:"slug"`
	}
	sel := indexedquery.Selection{First: 1}
	return c.Query(ctx, indexedquery.RecordCommunities, sel, &out) == nil
}
