// Package source defines the polymorphic Source capability set every
// backend (archive, database table, database function) implements, and
// the read-mostly registry that holds them.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nullisland/tileserv/internal/tilecoord"
	"github.com/nullisland/tileserv/internal/tileformat"
	"github.com/nullisland/tileserv/internal/tilejson"
)

// ErrTileNotFound is returned by an archive-backed source when no tile
// exists at the requested coordinate.
var ErrTileNotFound = errors.New("tile not found")

// NotFoundError carries the coordinate and source id for a missing
// archive tile.
type NotFoundError struct {
	ID  string
	Xyz tilecoord.Xyz
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tile not found: %s at %s", e.ID, e.Xyz)
}

func (e *NotFoundError) Unwrap() error { return ErrTileNotFound }

// DbError wraps a database-side failure serving a tile. The coordinate
// is always reported in z/x/y order.
type DbError struct {
	ID    string
	Xyz   tilecoord.Xyz
	Cause error
}

func (e *DbError) Error() string {
	return fmt.Sprintf("can't get %q tile at /%d/%d/%d: %v", e.ID, e.Xyz.Z, e.Xyz.X, e.Xyz.Y, e.Cause)
}

func (e *DbError) Unwrap() error { return e.Cause }

// BadRequestError signals a coordinate or zoom that is out of range for
// the addressed source; the HTTP adapter maps it to 4xx.
type BadRequestError struct {
	Xyz    tilecoord.Xyz
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request at %s: %s", e.Xyz, e.Reason)
}

// UrlQuery is the raw query string a client attached to a tile request;
// only sources that report SupportsURLQuery() consume it.
type UrlQuery = string

// Source is the capability set every backend implements. Implementations
// must be safe for concurrent use: GetTile is called concurrently across
// requests and must not retain per-request state.
type Source interface {
	ID() string
	TileJSON() tilejson.TileJSON
	Format() tileformat.DataFormat
	SupportsURLQuery() bool
	ValidZoom(z uint8) bool
	GetTile(ctx context.Context, xyz tilecoord.Xyz, query *UrlQuery) ([]byte, error)
	// CloneHandle returns a cheap handle sharing this source's
	// underlying resources (pool, memory map); it must not duplicate
	// the resource itself.
	CloneHandle() Source
}

// Registry is a read-mostly map of source id to Source. It is populated
// once at startup and may be swapped wholesale on reconfiguration, but
// is never mutated element-wise while requests are being served.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Get returns the source bound to id, or ok=false if none is registered.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// Set replaces the entire registry contents atomically.
func (r *Registry) Set(sources map[string]Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = sources
}

// Add registers a single source, overwriting any existing binding for
// the same id. Used while assembling the registry at startup; not
// intended for use once requests are being served.
func (r *Registry) Add(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string]Source)
	}
	r.sources[s.ID()] = s
}

// IDs returns every registered source id in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
