// Package routetable implements the federation route table: the
// mapping from a peer server name to its overlay public key (or an
// opaque handle the overlay resolves) plus liveness metadata.
//
// All operations complete under a single read-write lock over the
// underlying map: Add, Remove and RecordSuccess hold it exclusively,
// while Get, List and Len hold it shared, so concurrent readers do not
// exclude one another. Per the bridge's concurrency model, that
// critical section never contains a suspension point: callers must not
// perform network I/O while holding a route returned from this package.
package routetable

import (
	"strings"
	"sync"
	"time"

	"github.com/mycelium-matrix/federation-bridge/internal/model"
)

// Table is the process-wide federation route table. The zero value is
// not usable; construct with New.
type Table struct {
	mu     sync.RWMutex
	routes map[string]model.FederationRoute
}

// New returns an empty route table.
func New() *Table {
	return &Table{routes: make(map[string]model.FederationRoute)}
}

// Add inserts or overwrites the route for server, resetting
// LastSuccessful to now and LatencyMS to zero.
func (t *Table) Add(server, key string) model.FederationRoute {
	t.mu.Lock()
	defer t.mu.Unlock()

	route := model.FederationRoute{
		DestinationServer: server,
		MyceliumKey:       key,
		LastSuccessful:    time.Now().Unix(),
		LatencyMS:         0,
	}
	t.routes[server] = route
	return route
}

// Remove deletes the route for server, if any.
func (t *Table) Remove(server string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.routes, server)
}

// Get returns the route for server and true, or the zero value and
// false if no route exists. Absence means "no overlay path exists" —
// callers must fall back to the Matrix transport.
func (t *Table) Get(server string) (model.FederationRoute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	route, ok := t.routes[server]
	return route, ok
}

// List returns a snapshot of every route, in no particular order.
func (t *Table) List() []model.FederationRoute {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.FederationRoute, 0, len(t.routes))
	for _, route := range t.routes {
		out = append(out, route)
	}
	return out
}

// Len returns the number of routes currently tracked.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.routes)
}

// RecordSuccess updates a route's liveness metadata after a successful
// round-trip. It is a no-op if the route no longer exists.
func (t *Table) RecordSuccess(server string, latencyMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	route, ok := t.routes[server]
	if !ok {
		return
	}
	route.LastSuccessful = time.Now().Unix()
	route.LatencyMS = latencyMS
	t.routes[server] = route
}

// ResolveDestinationKey applies the route table's key-resolution
// policy: a mycelium_key that is 64 characters long or begins with
// "0x" is a literal overlay public key; anything else is an opaque
// handle passed through verbatim to the overlay's submission API,
// which is trusted to resolve it.
func ResolveDestinationKey(myceliumKey string) string {
	if IsLiteralKey(myceliumKey) {
		return myceliumKey
	}
	return myceliumKey
}

// IsLiteralKey reports whether key should be treated as a literal
// overlay public key rather than an opaque handle.
func IsLiteralKey(key string) bool {
	return len(key) == 64 || strings.HasPrefix(key, "0x")
}
