package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basegraph/intelengine/internal/domain/queryerror"
)

const reverseSuffix = ".addr.reverse"

func TestResolveNameRejectsMalformedShape(t *testing.T) {
	r := NewNameResolver(&fakeRegistry{}, reverseSuffix, time.Minute, 10)
	_, err := r.ResolveName(context.Background(), "not a basename")
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestResolveNameCachesAndCountsHitsMisses(t *testing.T) {
	registry := &fakeRegistry{forward: map[string]string{"alice.base.eth": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}}
	r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)

	addr, err := r.ResolveName(context.Background(), "alice.base.eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("expected normalized address, got %q", addr)
	}
	if r.Misses() != 1 || r.Hits() != 0 {
		t.Fatalf("expected one miss, got hits=%d misses=%d", r.Hits(), r.Misses())
	}

	addr2, err := r.ResolveName(context.Background(), "ALICE.base.eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr2 != addr {
		t.Fatalf("expected cached result to match regardless of case, got %q", addr2)
	}
	if r.Hits() != 1 {
		t.Fatalf("expected one cache hit, got %d", r.Hits())
	}
}

func TestResolveNameUnregisteredReturnsEmpty(t *testing.T) {
	r := NewNameResolver(&fakeRegistry{forward: map[string]string{}}, reverseSuffix, time.Minute, 10)
	addr, err := r.ResolveName(context.Background(), "nobody.base.eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "" {
		t.Fatalf("expected empty address for unregistered name, got %q", addr)
	}
}

// lookupAddress succeeds if and only if resolveName(lookupAddress(addr)) == addr.
func TestLookupAddressRequiresForwardVerification(t *testing.T) {
	addr := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	node := addr[2:] + reverseSuffix // ReverseNode strips "0x" and appends the suffix

	t.Run("verified reverse record resolves", func(t *testing.T) {
		registry := &fakeRegistry{
			forward: map[string]string{"bob.base.eth": addr},
			reverse: map[string]string{node: "bob.base.eth"},
		}
		r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)
		name, err := r.LookupAddress(context.Background(), addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "bob.base.eth" {
			t.Fatalf("expected verified reverse name, got %q", name)
		}
	})

	t.Run("reverse record pointing at a name that resolves elsewhere is rejected", func(t *testing.T) {
		registry := &fakeRegistry{
			forward: map[string]string{"impostor.base.eth": "0xcccccccccccccccccccccccccccccccccccccccc"},
			reverse: map[string]string{node: "impostor.base.eth"},
		}
		r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)
		name, err := r.LookupAddress(context.Background(), addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "" {
			t.Fatalf("expected empty name when forward-verification fails, got %q", name)
		}
	})

	t.Run("no reverse record", func(t *testing.T) {
		registry := &fakeRegistry{}
		r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)
		name, err := r.LookupAddress(context.Background(), addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "" {
			t.Fatalf("expected empty name when no reverse record exists, got %q", name)
		}
	})
}

func TestLookupAddressRejectsMalformedAddress(t *testing.T) {
	r := NewNameResolver(&fakeRegistry{}, reverseSuffix, time.Minute, 10)
	_, err := r.LookupAddress(context.Background(), "not-an-address")
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) || qerr.Kind != queryerror.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestForwardCacheEvictsOldestOnceMaxSizeExceeded(t *testing.T) {
	registry := &fakeRegistry{forward: map[string]string{
		"a.base.eth": "0x1111111111111111111111111111111111111111",
		"b.base.eth": "0x2222222222222222222222222222222222222222",
		"c.base.eth": "0x3333333333333333333333333333333333333333",
	}}
	r := NewNameResolver(registry, reverseSuffix, time.Minute, 2)
	ctx := context.Background()

	if _, err := r.ResolveName(ctx, "a.base.eth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.ResolveName(ctx, "b.base.eth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Exceeds maxSize=2: "a" should be evicted (oldest-first).
	if _, err := r.ResolveName(ctx, "c.base.eth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missesBefore := r.Misses()
	if _, err := r.ResolveName(ctx, "a.base.eth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Misses() != missesBefore+1 {
		t.Fatalf("expected re-resolving evicted name 'a' to miss the cache again")
	}
}

func TestResolveNameOrAddressDispatchesByShape(t *testing.T) {
	registry := &fakeRegistry{forward: map[string]string{"carol.base.eth": "0x4444444444444444444444444444444444444444"}}
	r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)
	ctx := context.Background()

	addr, err := r.ResolveNameOrAddress(ctx, "0x4444444444444444444444444444444444444444")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0x4444444444444444444444444444444444444444" {
		t.Fatalf("expected normalized address passthrough, got %q", addr)
	}

	addr, err = r.ResolveNameOrAddress(ctx, "carol.base.eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0x4444444444444444444444444444444444444444" {
		t.Fatalf("expected resolved name to produce parent address, got %q", addr)
	}
}

func TestVerifyOwnershipAndIsRegistered(t *testing.T) {
	addr := "0x5555555555555555555555555555555555555555"
	registry := &fakeRegistry{forward: map[string]string{"dana.base.eth": addr}}
	r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)
	ctx := context.Background()

	owns, err := r.VerifyOwnership(ctx, "dana.base.eth", addr)
	if err != nil || !owns {
		t.Fatalf("expected ownership verified, got owns=%v err=%v", owns, err)
	}

	owns, err = r.VerifyOwnership(ctx, "dana.base.eth", "0x6666666666666666666666666666666666666666")
	if err != nil || owns {
		t.Fatalf("expected ownership mismatch, got owns=%v err=%v", owns, err)
	}

	registered, err := r.IsRegistered(ctx, "dana.base.eth")
	if err != nil || !registered {
		t.Fatalf("expected registered, got %v / %v", registered, err)
	}

	registered, err = r.IsRegistered(ctx, "ghost.base.eth")
	if err != nil || registered {
		t.Fatalf("expected unregistered, got %v / %v", registered, err)
	}
}

func TestLookupAddressesSkipsFailuresWithoutFailingBatch(t *testing.T) {
	goodAddr := "0x7777777777777777777777777777777777777777"
	node := goodAddr[2:] + reverseSuffix
	registry := &fakeRegistry{
		forward: map[string]string{"eve.base.eth": goodAddr},
		reverse: map[string]string{node: "eve.base.eth"},
	}
	r := NewNameResolver(registry, reverseSuffix, time.Minute, 10)

	out := r.LookupAddresses(context.Background(), []string{
		goodAddr,
		"0x8888888888888888888888888888888888888888", // no reverse record
	})
	if len(out) != 1 || out[goodAddr] != "eve.base.eth" {
		t.Fatalf("expected only the resolvable address in the batch result, got %v", out)
	}
}
