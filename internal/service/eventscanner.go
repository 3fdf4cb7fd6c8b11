package service

import (
	"context"
	"log/slog"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/eventsource"
)

// ScanResult is the outcome of a chunked event scan: the accumulated
// events plus whether every chunk succeeded.
type ScanResult struct {
	Events  []eventsource.RawEvent
	Partial bool // true if at least one chunk was skipped after failing
}

// EventScanner paginates a block-range scan of event logs with a bounded
// per-chunk size, tolerating chunk failures in favor of partial results.
type EventScanner struct {
	source        eventsource.Source
	maxBlockRange uint64
	maxEvents     int
	defaultLookback uint64
}

// NewEventScanner builds an EventScanner. maxBlockRange bounds each chunk
// (default 9,999 because the underlying RPC caps at 10,000); maxEvents
// bounds total accumulation (default 10,000); defaultLookback is how far
// back from the head to start when fromBlock is unset (default 50,000).
func NewEventScanner(source eventsource.Source, maxBlockRange uint64, maxEvents int, defaultLookback uint64) *EventScanner {
	return &EventScanner{
		source:          source,
		maxBlockRange:   maxBlockRange,
		maxEvents:       maxEvents,
		defaultLookback: defaultLookback,
	}
}

// Scan walks [fromBlock, head] in contiguous chunks, decoding matching
// events of name. fromBlock of -1 means "auto-tail": start from
// max(0, head - defaultLookback). A chunk failure is logged and skipped;
// accumulation stops at maxEvents or when the range is exhausted.
func (s *EventScanner) Scan(ctx context.Context, name eventsource.Name, fromBlock int64) (ScanResult, error) {
	head, err := s.source.HeadBlock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ScanResult{}, queryerror.New("EventScanner.Scan", queryerror.Cancelled, ctx.Err())
		}
		return ScanResult{}, queryerror.New("EventScanner.Scan", queryerror.Transport, err)
	}

	var start uint64
	switch {
	case fromBlock < 0:
		if head > s.defaultLookback {
			start = head - s.defaultLookback
		}
	default:
		start = uint64(fromBlock)
	}
	if start > head {
		return ScanResult{}, nil
	}

	result := ScanResult{Events: make([]eventsource.RawEvent, 0, s.maxEvents)}

	for chunkStart := start; chunkStart <= head; chunkStart += s.maxBlockRange + 1 {
		select {
		case <-ctx.Done():
			// Cancellation mid-scan aborts pagination at the next chunk
			// boundary but still hands back whatever accumulated so far,
			// rather than surfacing an error that would make withSource
			// discard it.
			result.Partial = true
			return result, nil
		default:
		}

		chunkEnd := chunkStart + s.maxBlockRange
		if chunkEnd > head {
			chunkEnd = head
		}

		events, err := s.source.FetchChunk(ctx, name, chunkStart, chunkEnd)
		if err != nil {
			slog.Warn("event chunk fetch failed, skipping",
				"event", name, "fromBlock", chunkStart, "toBlock", chunkEnd, "error", err)
			result.Partial = true
			continue
		}

		result.Events = append(result.Events, events...)
		if len(result.Events) >= s.maxEvents {
			result.Events = result.Events[:s.maxEvents]
			break
		}
	}

	return result, nil
}
