package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/basegraph/intelengine/internal/port/eventsource"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
)

// fakeIndexedClient is a hand-rolled indexedquery.Client backing the
// primary-source half of every withSource test: it records every call it
// receives and serves canned records per indexedquery.RecordSet, filtering
// RecordContents by a "community" predicate the same way the real GraphQL
// adapter would.
type fakeIndexedClient struct {
	mu    sync.Mutex
	calls []indexedquery.RecordSet

	agents          []agentRecord
	contents        []contentRecord
	attestations    []attestationRecord
	votingRelations []votingRelationRecord
	citations       []citationRecord

	err error // returned for every Query call when set
}

func (f *fakeIndexedClient) Query(ctx context.Context, set indexedquery.RecordSet, sel indexedquery.Selection, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, set)
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	switch set {
	case indexedquery.RecordAgents:
		ptr, ok := out.(*[]agentRecord)
		if !ok {
			return fmt.Errorf("unexpected out type %T for %s", out, set)
		}
		*ptr = f.agents
		return nil
	case indexedquery.RecordContents:
		ptr, ok := out.(*[]contentRecord)
		if !ok {
			return fmt.Errorf("unexpected out type %T for %s", out, set)
		}
		community, _ := sel.Where["community"].(string)
		if community == "" {
			*ptr = f.contents
			return nil
		}
		filtered := make([]contentRecord, 0, len(f.contents))
		for _, c := range f.contents {
			if c.Community == community {
				filtered = append(filtered, c)
			}
		}
		*ptr = filtered
		return nil
	case indexedquery.RecordAttestations:
		ptr, ok := out.(*[]attestationRecord)
		if !ok {
			return fmt.Errorf("unexpected out type %T for %s", out, set)
		}
		*ptr = f.attestations
		return nil
	case indexedquery.RecordVotingRelations:
		ptr, ok := out.(*[]votingRelationRecord)
		if !ok {
			return fmt.Errorf("unexpected out type %T for %s", out, set)
		}
		*ptr = f.votingRelations
		return nil
	case indexedquery.RecordCitations:
		ptr, ok := out.(*[]citationRecord)
		if !ok {
			return fmt.Errorf("unexpected out type %T for %s", out, set)
		}
		*ptr = f.citations
		return nil
	default:
		return fmt.Errorf("fakeIndexedClient: unhandled record set %s", set)
	}
}

func (f *fakeIndexedClient) IsHealthy(ctx context.Context) bool {
	return f.err == nil
}

func (f *fakeIndexedClient) callCount(set indexedquery.RecordSet) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.calls {
		if s == set {
			n++
		}
	}
	return n
}

// fakeEventSource is a hand-rolled eventsource.Source. events maps an event
// name to the fixed chunk it returns regardless of the requested range,
// which is enough to drive EventScanner without reimplementing real
// block-range semantics; onFetch, when set, runs before each FetchChunk
// call so tests can inject cancellation or per-call failures.
type fakeEventSource struct {
	head    uint64
	headErr error

	events   map[eventsource.Name][]eventsource.RawEvent
	failName map[eventsource.Name]bool // FetchChunk fails once per matching name

	onFetch   func(callIndex int)
	calls     int
	headCalls int
}

func (f *fakeEventSource) HeadBlock(ctx context.Context) (uint64, error) {
	f.headCalls++
	return f.head, f.headErr
}

func (f *fakeEventSource) FetchChunk(ctx context.Context, name eventsource.Name, fromBlock, toBlock uint64) ([]eventsource.RawEvent, error) {
	idx := f.calls
	f.calls++
	if f.onFetch != nil {
		f.onFetch(idx)
	}
	if f.failName != nil && f.failName[name] {
		delete(f.failName, name)
		return nil, fmt.Errorf("chunk fetch failed")
	}
	return f.events[name], nil
}

// fakeRegistry is a hand-rolled nameregistry.Registry keyed directly by the
// lowercased name / reverse-node string the NameResolver passes in (this
// engine does not compute real ENS namehashes).
type fakeRegistry struct {
	forward map[string]string // name -> address
	reverse map[string]string // reverse node -> candidate name
	err     error
}

func (f *fakeRegistry) Addr(ctx context.Context, namehash string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.forward[namehash], nil
}

func (f *fakeRegistry) Name(ctx context.Context, reverseNamehash string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reverse[reverseNamehash], nil
}
