// Package kvstore is the ephemeral correlation store: it links a rendered
// interactive message to the query or selection context needed to service a
// later action on it.
//
// Semantics are deliberately small: get/set, last write wins, no TTL of our
// own (the backing store may apply its own retention).
package kvstore

import "context"

type Store interface {
	// Get returns the value and whether the key exists. A missing key is not
	// an error.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error
}
