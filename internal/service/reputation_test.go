package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
)

func TestScoreUnknownAgentReturnsNeutralQualityAndZeroedComponents(t *testing.T) {
	indexed := &fakeIndexedClient{}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)
	composer := NewReputationComposer(svc, nil, time.Minute)

	addr := "0x9999999999999999999999999999999999999999"
	score, err := composer.Score(context.Background(), addr, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Address != addr {
		t.Fatalf("expected address echoed back, got %q", score.Address)
	}
	if score.Quality != 50 {
		t.Fatalf("expected neutral quality=50 for an unknown agent, got %v", score.Quality)
	}
	if score.Tenure != 0 || score.Trust != 0 || score.Influence != 0 || score.Activity != 0 || score.Breadth != 0 || score.Overall != 0 {
		t.Fatalf("expected every other component zeroed, got %+v", score)
	}
}

// TestScoreComputesWeightedTrustAndComponentsForKnownAgent grounds the
// composite score in a small, hand-computed attestation graph: a single
// attester -> target edge converges PageRank deterministically (power
// iteration fixed-point), so trust, and every other component derived from
// simple agent counters, can be asserted exactly.
func TestScoreComputesWeightedTrustAndComponentsForKnownAgent(t *testing.T) {
	target := "0x1111111111111111111111111111111111111111"
	attester := "0x2222222222222222222222222222222222222222"

	indexed := &fakeIndexedClient{
		agents: []agentRecord{{
			Address:           target,
			RegisteredAt:      0, // registered at the Unix epoch: tenure clamps to its 365-day ceiling
			PostCount:         10,
			FollowerCount:     25,
			ActiveCommunities: []string{"ai", "philosophy", "robotics", "art", "music"},
		}},
		attestations: []attestationRecord{
			{Attester: attester, Subject: target, Active: true},
		},
	}
	cfg := testConfig()
	cfg.MinPageRankForInfluence = 0.01 // low enough that the attester's converged score clears the floor
	scanner := NewEventScanner(&fakeEventSource{}, 0, 10_000, 0)
	svc := NewIntelligenceService(indexed, scanner, nil, cfg)
	composer := NewReputationComposer(svc, nil, time.Minute)

	score, err := composer.Score(context.Background(), target, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Tenure != 100 {
		t.Fatalf("expected tenure clamped to 100, got %v", score.Tenure)
	}
	if score.Activity != 10 {
		t.Fatalf("expected activity=10 (postCount under the 100 cap), got %v", score.Activity)
	}
	if score.Influence != 50 {
		t.Fatalf("expected influence=50 (25 of the 50-follower cap), got %v", score.Influence)
	}
	if score.Breadth != 50 {
		t.Fatalf("expected breadth=50 (5 of the 10-community cap), got %v", score.Breadth)
	}
	if score.Quality != 50 {
		t.Fatalf("expected neutral quality=50 with no voting relations, got %v", score.Quality)
	}
	const wantTrust = 15.0 // sum(0.075) / trustThreshold(0.5) * 100, from the converged PageRank fixed point
	if diff := score.Trust - wantTrust; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected trust=%v, got %v", wantTrust, score.Trust)
	}
	const wantOverall = 45.83 // round2(mean(100,50,15,50,10,50))
	if score.Overall != wantOverall {
		t.Fatalf("expected overall=%v, got %v", wantOverall, score.Overall)
	}
}

func TestScoreAppliesBoostsAndClampsAtBounds(t *testing.T) {
	target := "0x3333333333333333333333333333333333333333"
	indexed := &fakeIndexedClient{
		agents: []agentRecord{{Address: target, PostCount: 1, FollowerCount: 1, ActiveCommunities: []string{"ai"}}},
	}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)
	composer := NewReputationComposer(svc, nil, time.Minute)

	huge := 1000.0
	boosts := &Boosts{Activity: &huge, Quality: &huge, Influence: &huge, Breadth: &huge}
	score, err := composer.Score(context.Background(), target, false, boosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Activity != 100 || score.Quality != 100 || score.Influence != 100 || score.Breadth != 100 {
		t.Fatalf("expected every boosted component clamped to 100, got %+v", score)
	}
}

// TestPageRankCacheReusedWithinTTL is the round-trip law: running the
// composite score twice in succession against a warm PageRank cache
// produces identical components and incurs no additional upstream calls.
func TestPageRankCacheReusedWithinTTL(t *testing.T) {
	target := "0x4444444444444444444444444444444444444444"
	attester := "0x5555555555555555555555555555555555555555"
	indexed := &fakeIndexedClient{
		agents:       []agentRecord{{Address: target, PostCount: 3, FollowerCount: 2, ActiveCommunities: []string{"ai"}}},
		attestations: []attestationRecord{{Attester: attester, Subject: target, Active: true}},
	}
	svc := newTestIntelligence(indexed, &fakeEventSource{}, nil)
	composer := NewReputationComposer(svc, nil, time.Minute)

	first, err := composer.Score(context.Background(), target, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callsAfterFirst := indexed.callCount(indexedquery.RecordAttestations)
	if callsAfterFirst == 0 {
		t.Fatal("expected the first call to populate the pagerank cache from upstream")
	}

	second, err := composer.Score(context.Background(), target, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed.callCount(indexedquery.RecordAttestations) != callsAfterFirst {
		t.Fatalf("expected no additional upstream attestation calls on a warm cache, before=%d after=%d",
			callsAfterFirst, indexed.callCount(indexedquery.RecordAttestations))
	}
	if first.Trust != second.Trust || first.Quality != second.Quality || first.Overall != second.Overall {
		t.Fatalf("expected identical components from a warm cache, first=%+v second=%+v", first, second)
	}
}

func TestScoreRejectsUnresolvableInput(t *testing.T) {
	svc := newTestIntelligence(&fakeIndexedClient{}, &fakeEventSource{}, nil)
	composer := NewReputationComposer(svc, nil, time.Minute)

	_, err := composer.Score(context.Background(), "not-an-address", false, nil)
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}
