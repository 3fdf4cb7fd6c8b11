// Package nameregistry defines the port interface for the name-resolution
// source (C3's external collaborator): a two-step forward/reverse lookup
// keyed by namehash.
package nameregistry

import "context"

// Registry is the raw registry/resolver pair. NameResolver (C3) builds
// validation, caching, and forward-verification on top of this narrow
// interface; Registry itself performs no caching.
type Registry interface {
	// Addr resolves a forward namehash to an address. Returns "" if the
	// name is not registered.
	Addr(ctx context.Context, namehash string) (string, error)

	// Name resolves a reverse namehash to a candidate display name.
	// Returns "" if no reverse record exists. Callers MUST forward-verify
	// any non-empty result before trusting it (spec invariant 6).
	Name(ctx context.Context, reverseNamehash string) (string, error)
}
