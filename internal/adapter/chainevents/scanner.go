// Package chainevents implements the eventsource.Source port against a
// paginated JSON-RPC-style log endpoint. Pagination/accumulation policy
// lives in the service layer; this adapter only fetches and decodes one
// chunk at a time.
package chainevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/eventsource"
)

// Source talks to a log endpoint returning raw event envelopes over HTTP.
type Source struct {
	endpoint   string
	httpClient *http.Client
}

// NewSource creates a Source pointed at endpoint.
func NewSource(endpoint string) *Source {
	return &Source{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type headResponse struct {
	Block uint64 `json:"block"`
}

// HeadBlock implements eventsource.Source.
func (s *Source) HeadBlock(ctx context.Context) (uint64, error) {
	var head headResponse
	if err := s.post(ctx, map[string]any{"method": "head"}, &head); err != nil {
		return 0, err
	}
	return head.Block, nil
}

type rawEventWire struct {
	Name        string `json:"name"`
	Block       uint64 `json:"block"`
	LogIndex    uint32 `json:"logIndex"`
	Timestamp   int64  `json:"timestamp"`
	CID         string `json:"cid,omitempty"`
	Author      string `json:"author,omitempty"`
	Community   string `json:"community,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Attester    string `json:"attester,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Voter       string `json:"voter,omitempty"`
	VoteType    int    `json:"voteType,omitempty"`
	Follower    string `json:"follower,omitempty"`
	Followed    string `json:"followed,omitempty"`
	Agent       string `json:"agent,omitempty"`
	AgentType   int    `json:"agentType,omitempty"`
}

type chunkResponse struct {
	Events []rawEventWire `json:"events"`
}

// FetchChunk implements eventsource.Source.
func (s *Source) FetchChunk(ctx context.Context, name eventsource.Name, fromBlock, toBlock uint64) ([]eventsource.RawEvent, error) {
	var chunk chunkResponse
	req := map[string]any{
		"method":    "getLogs",
		"event":     string(name),
		"fromBlock": fromBlock,
		"toBlock":   toBlock,
	}
	if err := s.post(ctx, req, &chunk); err != nil {
		return nil, err
	}

	events := make([]eventsource.RawEvent, 0, len(chunk.Events))
	for _, w := range chunk.Events {
		events = append(events, eventsource.RawEvent{
			Name:        eventsource.Name(w.Name),
			Block:       w.Block,
			LogIndex:    w.LogIndex,
			Timestamp:   time.Unix(w.Timestamp, 0).UTC(),
			CID:         w.CID,
			Author:      w.Author,
			Community:   w.Community,
			ContentType: w.ContentType,
			Attester:    w.Attester,
			Subject:     w.Subject,
			Reason:      w.Reason,
			Voter:       w.Voter,
			VoteType:    w.VoteType,
			Follower:    w.Follower,
			Followed2:   w.Followed,
			Agent:       w.Agent,
			AgentType:   w.AgentType,
		})
	}
	return events, nil
}

func (s *Source) post(ctx context.Context, body map[string]any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return queryerror.New("chainevents.post", queryerror.InvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return queryerror.New("chainevents.post", queryerror.Transport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return queryerror.New("chainevents.post", queryerror.Cancelled, ctx.Err())
		}
		return queryerror.New("chainevents.post", queryerror.Transport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return queryerror.New("chainevents.post", queryerror.Transport, err)
	}

	if resp.StatusCode >= 500 {
		return queryerror.New("chainevents.post", queryerror.Transport, fmt.Errorf("event source %d: %s", resp.StatusCode, data))
	}
	if resp.StatusCode >= 400 {
		return queryerror.New("chainevents.post", queryerror.Semantic, fmt.Errorf("event source %d: %s", resp.StatusCode, data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return queryerror.New("chainevents.post", queryerror.Decode, err)
	}
	return nil
}
