// Package idresolver assigns collision-free source IDs across backends.
// The same requested id bound to the same signature is idempotent; a
// different signature sharing the same requested id is disambiguated
// with a ".1", ".2", ... suffix.
package idresolver

import (
	"fmt"
	"sync"
)

// Resolver is process-wide and safe for concurrent use. The zero value
// is ready to use.
type Resolver struct {
	mu   sync.Mutex
	seen map[string]string // resolved id -> signature
}

// New returns a ready-to-use Resolver.
func New() *Resolver {
	return &Resolver{seen: make(map[string]string)}
}

// Resolve returns a unique id for the requested id bound to signature.
// Calling Resolve twice with the same (id, signature) pair returns the
// same result. Calling it with the same requested id but a different
// signature returns a disambiguated id ("<id>.1", "<id>.2", ...).
func (r *Resolver) Resolve(requestedID, signature string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen == nil {
		r.seen = make(map[string]string)
	}

	if sig, ok := r.seen[requestedID]; ok {
		if sig == signature {
			return requestedID
		}
		for k := 1; ; k++ {
			candidate := fmt.Sprintf("%s.%d", requestedID, k)
			if sig, ok := r.seen[candidate]; ok {
				if sig == signature {
					return candidate
				}
				continue
			}
			r.seen[candidate] = signature
			return candidate
		}
	}

	r.seen[requestedID] = signature
	return requestedID
}
