package service

import (
	"context"
	"errors"
	"testing"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/eventsource"
)

func TestEventScannerAutoTailStartsFromLookback(t *testing.T) {
	src := &fakeEventSource{
		head: 100,
		events: map[eventsource.Name][]eventsource.RawEvent{
			eventsource.ContentPublished: {{Name: eventsource.ContentPublished, CID: "p1"}},
		},
	}
	scanner := NewEventScanner(src, 9999, 10_000, 50)

	result, err := scanner.Scan(context.Background(), eventsource.ContentPublished, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].CID != "p1" {
		t.Fatalf("expected one event, got %+v", result.Events)
	}
	if result.Partial {
		t.Fatalf("expected a clean scan, got Partial=true")
	}
}

func TestEventScannerStartBeyondHeadReturnsEmpty(t *testing.T) {
	src := &fakeEventSource{head: 10}
	scanner := NewEventScanner(src, 9999, 10_000, 50_000)

	result, err := scanner.Scan(context.Background(), eventsource.ContentPublished, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 0 {
		t.Fatalf("expected no events, got %+v", result.Events)
	}
}

func TestEventScannerSkipsFailedChunkAndMarksPartial(t *testing.T) {
	// maxBlockRange=0 forces one chunk per block, so head=2 yields 3
	// chunks; the fake fails exactly the second one (index 1).
	events := map[eventsource.Name][]eventsource.RawEvent{
		eventsource.ContentPublished: {{Name: eventsource.ContentPublished, CID: "p1"}},
	}
	counting := &countingFailSource{fakeEventSource: fakeEventSource{head: 2, events: events}, failOnCall: 1}

	scanner := NewEventScanner(counting, 0, 10_000, 0)
	result, err := scanner.Scan(context.Background(), eventsource.ContentPublished, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected Partial=true after a skipped chunk")
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected events from the two successful chunks, got %d", len(result.Events))
	}
}

// countingFailSource fails exactly one FetchChunk call (failOnCall, zero
// indexed) and succeeds on every other, returning the fixed event fixture.
type countingFailSource struct {
	fakeEventSource
	failOnCall int
	calls      int
}

func (c *countingFailSource) FetchChunk(ctx context.Context, name eventsource.Name, fromBlock, toBlock uint64) ([]eventsource.RawEvent, error) {
	idx := c.calls
	c.calls++
	if idx == c.failOnCall {
		return nil, errors.New("chunk unavailable")
	}
	return []eventsource.RawEvent{{Name: name, CID: "p1"}}, nil
}

func TestEventScannerTruncatesAtMaxEvents(t *testing.T) {
	src := &fakeEventSource{
		head: 0,
		events: map[eventsource.Name][]eventsource.RawEvent{
			eventsource.ContentPublished: {
				{Name: eventsource.ContentPublished, CID: "p1"},
				{Name: eventsource.ContentPublished, CID: "p2"},
				{Name: eventsource.ContentPublished, CID: "p3"},
			},
		},
	}
	scanner := NewEventScanner(src, 9999, 2, 0)

	result, err := scanner.Scan(context.Background(), eventsource.ContentPublished, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected events truncated to maxEvents=2, got %d", len(result.Events))
	}
}

func TestEventScannerHeadBlockTransportError(t *testing.T) {
	src := &fakeEventSource{headErr: errors.New("rpc down")}
	scanner := NewEventScanner(src, 9999, 10_000, 0)

	_, err := scanner.Scan(context.Background(), eventsource.ContentPublished, 0)
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.Transport {
		t.Fatalf("expected Transport error, got %v", err)
	}
}

func TestEventScannerHeadBlockCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeEventSource{headErr: ctx.Err()}
	scanner := NewEventScanner(src, 9999, 10_000, 0)

	_, err := scanner.Scan(ctx, eventsource.ContentPublished, 0)
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.Cancelled {
		t.Fatalf("expected Cancelled error, got %v", err)
	}
}

// TestEventScannerMidScanCancellationReturnsPartialWithoutError locks in
// the fix for the divergence where cancellation used to surface an error
// and strand the events already accumulated: it must now return the
// partial result with Partial=true and a nil error, so withSource's
// fallback path does not discard what was already fetched.
func TestEventScannerMidScanCancellationReturnsPartialWithoutError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &fakeEventSource{
		head: 3, // 4 chunks at maxBlockRange=0
		events: map[eventsource.Name][]eventsource.RawEvent{
			eventsource.ContentPublished: {{Name: eventsource.ContentPublished, CID: "p1"}},
		},
	}
	src.onFetch = func(callIndex int) {
		if callIndex == 0 {
			cancel() // cancel after the first chunk succeeds, before the second is checked
		}
	}
	scanner := NewEventScanner(src, 0, 10_000, 0)

	result, err := scanner.Scan(ctx, eventsource.ContentPublished, 0)
	if err != nil {
		t.Fatalf("expected no error on mid-scan cancellation, got %v", err)
	}
	if !result.Partial {
		t.Fatal("expected Partial=true on mid-scan cancellation")
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected the one chunk fetched before cancellation to survive, got %d events", len(result.Events))
	}
}
