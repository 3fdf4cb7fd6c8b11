package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/eventsource"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
)

func testConfig() IntelligenceConfig {
	return IntelligenceConfig{
		MaxEvents:               10_000,
		MaxBlockRange:           10_000,
		MaxPageRankIterations:   50,
		PageRankDampingFactor:   0.85,
		MinPageRankForInfluence: 0,
		TrustThreshold:          0.5,
		QualityScalingFactor:    10,
	}
}

func newTestIntelligence(indexed *fakeIndexedClient, events *fakeEventSource, resolver *NameResolver) *IntelligenceService {
	scanner := NewEventScanner(events, 0, 10_000, 0)
	var client indexedquery.Client // stays a nil interface when indexed is nil
	if indexed != nil {
		client = indexed
	}
	return NewIntelligenceService(client, scanner, resolver, testConfig())
}

// --- withSource state machine ---

func TestWithSourcePrimarySuccessNeverTouchesFallback(t *testing.T) {
	indexed := &fakeIndexedClient{contents: []contentRecord{{CID: "p1", Author: "0x1", Community: "ai"}}}
	events := &fakeEventSource{headErr: errors.New("fallback must not be consulted")}
	svc := newTestIntelligence(indexed, events, nil)

	out, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		posts, err := ds.Contents(context.Background(), "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.CID
		}
		return ids, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "p1" {
		t.Fatalf("expected primary result, got %v", out)
	}
	if events.headCalls != 0 {
		t.Fatalf("expected fallback never consulted, headCalls=%d", events.headCalls)
	}
}

func TestWithSourceTransportErrorFallsBackToEventScan(t *testing.T) {
	indexed := &fakeIndexedClient{err: queryerror.New("Query", queryerror.Transport, errors.New("rpc down"))}
	events := &fakeEventSource{
		head: 0,
		events: map[eventsource.Name][]eventsource.RawEvent{
			eventsource.ContentPublished: {{Name: eventsource.ContentPublished, CID: "fallback-p1"}},
		},
	}
	svc := newTestIntelligence(indexed, events, nil)

	out, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		posts, err := ds.Contents(context.Background(), "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.CID
		}
		return ids, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "fallback-p1" {
		t.Fatalf("expected fallback result, got %v", out)
	}
}

func TestWithSourceNonFallbackKindDegradesToEmptyWithoutConsultingFallback(t *testing.T) {
	indexed := &fakeIndexedClient{err: queryerror.New("Query", queryerror.Decode, errors.New("bad payload"))}
	events := &fakeEventSource{headErr: errors.New("fallback must not be consulted")}
	svc := newTestIntelligence(indexed, events, nil)

	out, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		posts, err := ds.Contents(context.Background(), "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.CID
		}
		return ids, nil
	})
	if err != nil {
		t.Fatalf("expected no error (degrade to empty), got %v", err)
	}
	if out != nil {
		t.Fatalf("expected zero value, got %v", out)
	}
	if events.headCalls != 0 {
		t.Fatalf("Decode does not trigger fallback, headCalls=%d", events.headCalls)
	}
}

func TestWithSourceFallbackAlsoFailingDegradesToEmptyWithoutError(t *testing.T) {
	indexed := &fakeIndexedClient{err: queryerror.New("Query", queryerror.Transport, errors.New("rpc down"))}
	events := &fakeEventSource{headErr: errors.New("rpc also down")}
	svc := newTestIntelligence(indexed, events, nil)

	out, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		posts, err := ds.Contents(context.Background(), "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.CID
		}
		return ids, nil
	})
	if err != nil {
		t.Fatalf("expected no error when both sources fail, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected zero value, got %v", out)
	}
}

func TestWithSourceCancelledPropagatesImmediatelyWithoutFallback(t *testing.T) {
	indexed := &fakeIndexedClient{err: queryerror.New("Query", queryerror.Cancelled, context.Canceled)}
	events := &fakeEventSource{headErr: errors.New("fallback must not be consulted")}
	svc := newTestIntelligence(indexed, events, nil)

	_, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		_, err := ds.Contents(context.Background(), "")
		return nil, err
	})
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.Cancelled {
		t.Fatalf("expected Cancelled to surface, got %v", err)
	}
	if events.headCalls != 0 {
		t.Fatalf("Cancelled must not trigger fallback, headCalls=%d", events.headCalls)
	}
}

func TestWithSourceNoPrimaryConfiguredGoesStraightToFallback(t *testing.T) {
	events := &fakeEventSource{
		head: 0,
		events: map[eventsource.Name][]eventsource.RawEvent{
			eventsource.ContentPublished: {{Name: eventsource.ContentPublished, CID: "only-fallback"}},
		},
	}
	svc := newTestIntelligence(nil, events, nil)

	out, err := withSource(context.Background(), svc, "test", func(ds DataSource) ([]string, error) {
		posts, err := ds.Contents(context.Background(), "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.CID
		}
		return ids, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "only-fallback" {
		t.Fatalf("expected event-scan-only result, got %v", out)
	}
}

// --- Experts (scenario 1) ---

func TestExpertsScenario1(t *testing.T) {
	indexed := &fakeIndexedClient{contents: []contentRecord{
		{CID: "p1", Author: "alice", Community: "ai", Upvotes: 10, Downvotes: 2},
		{CID: "p2", Author: "alice", Upvotes: 6, Downvotes: 2, Community: "ai"},
		{CID: "p3", Author: "bob", Community: "ai", Upvotes: 5, Downvotes: 1},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)

	out, err := svc.Experts(context.Background(), "ai", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 experts, got %d", len(out))
	}
	if out[0].Address != "alice" || out[0].PostCount != 2 || out[0].TotalScore != 12 || out[0].AvgScore != 6 {
		t.Fatalf("unexpected top expert: %+v", out[0])
	}
	if out[1].Address != "bob" || out[1].PostCount != 1 || out[1].TotalScore != 4 || out[1].AvgScore != 4 {
		t.Fatalf("unexpected second expert: %+v", out[1])
	}
}

func TestExpertsRejectsNonPositiveLimit(t *testing.T) {
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, nil)
	_, err := svc.Experts(context.Background(), "ai", 0)
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

// --- RelatedCommunities (scenario 3) ---

func TestRelatedCommunitiesScenario3(t *testing.T) {
	indexed := &fakeIndexedClient{contents: []contentRecord{
		{CID: "p1", Author: "a1", Community: "ai"},
		{CID: "p2", Author: "a2", Community: "ai"},
		{CID: "p3", Author: "a3", Community: "ai"},
		{CID: "p4", Author: "a1", Community: "philosophy"},
		{CID: "p5", Author: "a4", Community: "philosophy"},
		{CID: "p6", Author: "a5", Community: "sports"},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)

	out, err := svc.RelatedCommunities(context.Background(), "ai", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected sports excluded (zero overlap), got %+v", out)
	}
	if out[0].Community != "philosophy" || out[0].SharedAgents != 1 {
		t.Fatalf("unexpected related community: %+v", out[0])
	}
	const want = 1.0 / 4.0 // |{a1}| / |{a1,a2,a3,a4}|
	if diff := out[0].Relatedness - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected relatedness %v, got %v", want, out[0].Relatedness)
	}
}

// --- CommunityHealth ---

func TestCommunityHealthUnknownCommunityIsZeroFilled(t *testing.T) {
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, nil)
	health, err := svc.CommunityHealth(context.Background(), "nobody-here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.TotalPosts != 0 || health.UniqueAuthors != 0 || health.AvgScore != 0 || len(health.TopCIDs) != 0 {
		t.Fatalf("expected zero-value health, got %+v", health)
	}
}

func TestCommunityHealthAggregates(t *testing.T) {
	indexed := &fakeIndexedClient{contents: []contentRecord{
		{CID: "p1", Author: "a1", Community: "ai", Upvotes: 10},
		{CID: "p2", Author: "a2", Community: "ai", Upvotes: 4},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)
	health, err := svc.CommunityHealth(context.Background(), "AI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.TotalPosts != 2 || health.UniqueAuthors != 2 || health.AvgScore != 7 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.TopCIDs) != 2 || health.TopCIDs[0] != "p1" {
		t.Fatalf("expected top post ranked first, got %v", health.TopCIDs)
	}
}

// --- TagCloud / ConceptTimeline wired through the service router ---

func TestTagCloudThroughService(t *testing.T) {
	indexed := &fakeIndexedClient{contents: []contentRecord{
		{CID: "p1", Community: "ai", Tags: []string{"llm", "agents"}, Upvotes: 3},
		{CID: "p2", Community: "ai", Tags: []string{"llm"}, Upvotes: 1},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)

	out, err := svc.TagCloud(context.Background(), "ai", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 || out[0].Tag != "llm" || out[0].Count != 2 {
		t.Fatalf("expected llm to lead the tag cloud, got %+v", out)
	}
}

func TestConceptTimelineRejectsEmptyTag(t *testing.T) {
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, nil)
	_, _, err := svc.ConceptTimeline(context.Background(), "ai", "")
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput for empty tag, got %v", err)
	}
}

func TestConceptTimelineThroughService(t *testing.T) {
	day := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	indexed := &fakeIndexedClient{contents: []contentRecord{
		{CID: "p1", Community: "ai", Tags: []string{"llm"}, Timestamp: day.Unix()},
		{CID: "p2", Community: "ai", Tags: []string{"robotics"}, Timestamp: day.Unix()},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)

	buckets, total, err := svc.ConceptTimeline(context.Background(), "ai", "llm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(buckets) != 1 || buckets[0].Count != 1 {
		t.Fatalf("expected one matching bucket, got buckets=%+v total=%d", buckets, total)
	}
}

// --- TrustPath exercised through resolveAgentInput ---

func TestTrustPathThroughServiceResolvesAddressesDirectly(t *testing.T) {
	addrA := "0x1111111111111111111111111111111111111111"
	addrB := "0x2222222222222222222222222222222222222222"
	addrC := "0x3333333333333333333333333333333333333333"
	indexed := &fakeIndexedClient{attestations: []attestationRecord{
		{Attester: addrA, Subject: addrB, Active: true},
		{Attester: addrB, Subject: addrC, Active: true},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)

	result, err := svc.TrustPath(context.Background(), addrA, addrC, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found || result.Depth != 2 {
		t.Fatalf("expected a 2-hop path, got %+v", result)
	}
}

func TestTrustPathThroughServiceResolvesNamesViaResolver(t *testing.T) {
	addrA := "0x1111111111111111111111111111111111111111"
	addrB := "0x2222222222222222222222222222222222222222"
	registry := &fakeRegistry{forward: map[string]string{"alice.base.eth": addrA, "bob.base.eth": addrB}}
	resolver := NewNameResolver(registry, ".addr.reverse", time.Minute, 10)
	indexed := &fakeIndexedClient{attestations: []attestationRecord{
		{Attester: addrA, Subject: addrB, Active: true},
	}}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, resolver)

	result, err := svc.TrustPath(context.Background(), "alice.base.eth", "bob.base.eth", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found || result.Depth != 1 {
		t.Fatalf("expected a direct path, got %+v", result)
	}
}

func TestTrustPathThroughServiceRejectsUnresolvableName(t *testing.T) {
	registry := &fakeRegistry{forward: map[string]string{}}
	resolver := NewNameResolver(registry, ".addr.reverse", time.Minute, 10)
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, resolver)

	_, err := svc.TrustPath(context.Background(), "ghost.base.eth", "0x1111111111111111111111111111111111111111", 5)
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput for an unregistered name, got %v", err)
	}
}

// --- InheritChildAvatar wiring ---

func TestInheritChildAvatarIsConcurrencySafe(t *testing.T) {
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, nil)
	parent := Avatar{HexColor: "#3366cc", Complexity: 3, Palette: "warm", Shape: "hex"}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			svc.InheritChildAvatar(parent, AvatarOverride{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
