package service

import "context"

// EnrichmentLayer is C8: it batches name lookups across a page of result
// records so a query never pays one round trip per row. A resolution
// failure for one address never fails the batch — the record's name
// field is simply left unset.
type EnrichmentLayer struct {
	resolver *NameResolver
}

// NewEnrichmentLayer wires C8 on top of the shared NameResolver (C3's
// caching front door).
func NewEnrichmentLayer(resolver *NameResolver) *EnrichmentLayer {
	return &EnrichmentLayer{resolver: resolver}
}

// attach resolves the unique addresses returned by addressOf across
// records and calls setName on each one that resolved.
func attach[T any](ctx context.Context, e *EnrichmentLayer, records []T, addressOf func(T) string, setName func(*T, string)) {
	if e.resolver == nil || len(records) == 0 {
		return
	}

	seen := make(map[string]bool)
	addrs := make([]string, 0, len(records))
	for _, r := range records {
		addr := addressOf(r)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}

	names := e.resolver.LookupAddresses(ctx, addrs)
	for i := range records {
		if name, ok := names[addressOf(records[i])]; ok && name != "" {
			setName(&records[i], name)
		}
	}
}

// AttachExperts attaches Name to each ExpertEntry.
func (e *EnrichmentLayer) AttachExperts(ctx context.Context, entries []ExpertEntry) {
	attach(ctx, e, entries,
		func(r ExpertEntry) string { return r.Address },
		func(r *ExpertEntry, name string) { r.Name = name })
}

// AttachConsensus attaches AuthorName to each ConsensusEntry.
func (e *EnrichmentLayer) AttachConsensus(ctx context.Context, entries []ConsensusEntry) {
	attach(ctx, e, entries,
		func(r ConsensusEntry) string { return r.Author },
		func(r *ConsensusEntry, name string) { r.AuthorName = name })
}

// AttachBridges attaches Name to each AgentBridge.
func (e *EnrichmentLayer) AttachBridges(ctx context.Context, entries []AgentBridge) {
	attach(ctx, e, entries,
		func(r AgentBridge) string { return r.Address },
		func(r *AgentBridge, name string) { r.Name = name })
}

// AttachCollaborators attaches Name to each CollabPartner.
func (e *EnrichmentLayer) AttachCollaborators(ctx context.Context, entries []CollabPartner) {
	attach(ctx, e, entries,
		func(r CollabPartner) string { return r.Address },
		func(r *CollabPartner, name string) { r.Name = name })
}

// AttachEmerging attaches Name to each EmergingAgent.
func (e *EnrichmentLayer) AttachEmerging(ctx context.Context, entries []EmergingAgent) {
	attach(ctx, e, entries,
		func(r EmergingAgent) string { return r.Address },
		func(r *EmergingAgent, name string) { r.Name = name })
}
