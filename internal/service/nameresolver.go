package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basegraph/intelengine/internal/domain/address"
	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/port/nameregistry"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NameResolver performs forward and reverse basename lookups with
// TTL-bounded LRU caches and mandatory forward-verification on reverse
// hits (spec invariant 6: a reverse-resolved name is trusted only if it
// forward-resolves back to the original address).
type NameResolver struct {
	registry      nameregistry.Registry
	reverseSuffix string
	ttl           time.Duration
	maxSize       int

	mu           sync.RWMutex
	forward      map[string]cacheEntry // name -> address
	forwardOrder []string
	reverse      map[string]cacheEntry // address -> name
	reverseOrder []string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewNameResolver builds a NameResolver over registry. reverseSuffix is the
// fixed string appended to an address (without 0x) to form the reverse
// namehash input; ttl and maxSize bound both caches.
func NewNameResolver(registry nameregistry.Registry, reverseSuffix string, ttl time.Duration, maxSize int) *NameResolver {
	return &NameResolver{
		registry:      registry,
		reverseSuffix: reverseSuffix,
		ttl:           ttl,
		maxSize:       maxSize,
		forward:       make(map[string]cacheEntry),
		reverse:       make(map[string]cacheEntry),
	}
}

// Hits and Misses are observability counters; every cache lookup
// increments exactly one of them, so the hit rate and miss rate derived
// from them sum to 1 once at least one lookup has occurred.
func (r *NameResolver) Hits() int64   { return r.hits.Load() }
func (r *NameResolver) Misses() int64 { return r.misses.Load() }

// ResolveName resolves a basename to its canonical address, or "" if
// unregistered. Returns InvalidInput if name does not match the basename
// shape.
func (r *NameResolver) ResolveName(ctx context.Context, name string) (string, error) {
	if !address.ValidName(name) {
		return "", queryerror.New("NameResolver.ResolveName", queryerror.InvalidInput, nil)
	}
	lname := normalizeAddr(name)

	if addr, ok := r.getForward(lname); ok {
		r.hits.Add(1)
		return addr, nil
	}
	r.misses.Add(1)

	addr, err := r.registry.Addr(ctx, lname)
	if err != nil {
		return "", err
	}
	addr = address.Normalize(addr)
	r.putForward(lname, addr)
	return addr, nil
}

// LookupAddress resolves an address to its reverse-registered name, or ""
// if none is set or the reverse record fails forward-verification.
func (r *NameResolver) LookupAddress(ctx context.Context, addr string) (string, error) {
	if !address.Valid(addr) {
		return "", queryerror.New("NameResolver.LookupAddress", queryerror.InvalidInput, nil)
	}
	naddr := address.Normalize(addr)

	if name, ok := r.getReverse(naddr); ok {
		r.hits.Add(1)
		return name, nil
	}
	r.misses.Add(1)

	node := address.ReverseNode(naddr, r.reverseSuffix)
	candidate, err := r.registry.Name(ctx, node)
	if err != nil {
		return "", err
	}
	if candidate == "" {
		return "", nil
	}

	// Forward-verification: the candidate must resolve back to naddr.
	verifiedAddr, err := r.ResolveName(ctx, candidate)
	if err != nil {
		return "", err
	}
	if verifiedAddr != naddr {
		return "", nil
	}

	r.putReverse(naddr, candidate)
	return candidate, nil
}

// ResolveNameOrAddress accepts either shape and returns the canonical
// address.
func (r *NameResolver) ResolveNameOrAddress(ctx context.Context, input string) (string, error) {
	if address.LooksLikeAddress(input) {
		if !address.Valid(input) {
			return "", queryerror.New("NameResolver.ResolveNameOrAddress", queryerror.InvalidInput, nil)
		}
		return address.Normalize(input), nil
	}
	return r.ResolveName(ctx, input)
}

// VerifyOwnership reports whether name currently resolves to addr.
func (r *NameResolver) VerifyOwnership(ctx context.Context, name, addr string) (bool, error) {
	resolved, err := r.ResolveName(ctx, name)
	if err != nil {
		return false, err
	}
	return resolved != "" && resolved == address.Normalize(addr), nil
}

// IsRegistered reports whether name currently resolves to any address.
func (r *NameResolver) IsRegistered(ctx context.Context, name string) (bool, error) {
	resolved, err := r.ResolveName(ctx, name)
	if err != nil {
		return false, err
	}
	return resolved != "", nil
}

// LookupAddresses resolves a batch of addresses, skipping individual
// failures rather than failing the whole batch: a name-enrichment
// failure never fails the caller's query.
func (r *NameResolver) LookupAddresses(ctx context.Context, addrs []string) map[string]string {
	out := make(map[string]string, len(addrs))
	for _, a := range addrs {
		name, err := r.LookupAddress(ctx, a)
		if err != nil || name == "" {
			continue
		}
		out[address.Normalize(a)] = name
	}
	return out
}

// normalizeAddr lowercases and trims a basename before it is used as a
// cache key or registry lookup input. Despite the name, address.Normalize
// is a plain case/whitespace fold, not address-shape validation — the
// same fold basenames and hex addresses both need before comparison.
func normalizeAddr(name string) string {
	return address.Normalize(name)
}

func (r *NameResolver) getForward(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.forward[name]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (r *NameResolver) getReverse(addr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.reverse[addr]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (r *NameResolver) putForward(name, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forward[name]; !exists {
		if len(r.forward) >= r.maxSize {
			r.evictOldest(r.forward, &r.forwardOrder)
		}
		r.forwardOrder = append(r.forwardOrder, name)
	}
	r.forward[name] = cacheEntry{value: addr, expiresAt: time.Now().Add(r.ttl)}
}

func (r *NameResolver) putReverse(addr, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reverse[addr]; !exists {
		if len(r.reverse) >= r.maxSize {
			r.evictOldest(r.reverse, &r.reverseOrder)
		}
		r.reverseOrder = append(r.reverseOrder, addr)
	}
	r.reverse[addr] = cacheEntry{value: name, expiresAt: time.Now().Add(r.ttl)}
}

// evictOldest drops the oldest-inserted entry still tracked in order from
// m, advancing order past any key no longer present in m. Expired entries
// stay in m until evicted here.
func (r *NameResolver) evictOldest(m map[string]cacheEntry, order *[]string) {
	for len(*order) > 0 {
		oldest := (*order)[0]
		*order = (*order)[1:]
		if _, ok := m[oldest]; ok {
			delete(m, oldest)
			return
		}
	}
}
