// Package pending implements the pending-call registry: an in-memory
// correlation table keyed by message id, with one-shot delivery slots.
//
// reserve/resolve/forget each complete under a single short exclusive
// critical section over the underlying map; the consumer's wait on a
// slot's completion happens outside that section, on the slot's own
// channel, so a blocked consumer never blocks a submitter or resolver.
package pending

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mycelium-matrix/federation-bridge/internal/model"
)

// slot is a one-shot completion for a single message id. ch is
// buffered with capacity 1 so Resolve never blocks on a slow or absent
// consumer.
type slot struct {
	ch chan model.FederationResponse
}

// Registry is the process-wide pending-call registry. The zero value
// is not usable; construct with New.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// New returns an empty pending-call registry.
func New() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Handle is the consumer-facing view of a reserved slot.
type Handle struct {
	ch <-chan model.FederationResponse
}

// Wait blocks until either a response is resolved into the slot or done
// is closed, whichever happens first. The caller is still responsible for
// calling Registry.Forget on every path that does not observe a
// resolution (timeout or early return), per the pending-call registry's
// leak-prevention invariant.
func (h Handle) Wait(done <-chan struct{}) (model.FederationResponse, bool) {
	select {
	case resp, ok := <-h.ch:
		return resp, ok
	case <-done:
		return model.FederationResponse{}, false
	}
}

// Reserve inserts an empty one-shot slot for messageID and returns a
// consumer Handle. messageID must be unique for the lifetime of the
// reservation; a second Reserve for the same id replaces the first
// slot, orphaning any earlier waiter.
func (r *Registry) Reserve(messageID string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &slot{ch: make(chan model.FederationResponse, 1)}
	r.slots[messageID] = s
	return Handle{ch: s.ch}
}

// Resolve transfers response into the slot for messageID if it still
// exists, and removes the slot so a later duplicate resolution is
// discarded. Resolving a message id with no reserved slot is a no-op.
func (r *Registry) Resolve(messageID string, response model.FederationResponse) {
	r.ResolveIfPending(messageID, response)
}

// ResolveIfPending resolves messageID with response only if a slot is
// currently reserved for it, reporting whether a slot was found. Callers
// that need to distinguish "this is a reply to one of our own pending
// calls" from "this is unrelated inbound traffic" should use this
// instead of Resolve.
func (r *Registry) ResolveIfPending(messageID string, response model.FederationResponse) bool {
	r.mu.Lock()
	s, ok := r.slots[messageID]
	if ok {
		delete(r.slots, messageID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.ch <- response
	return true
}

// Forget removes the slot for messageID without resolving it. Used on
// timeout, on failed submission, or on any other path out of the
// Dispatcher that does not observe a resolution. A response that
// arrives after Forget finds no slot and is silently discarded.
func (r *Registry) Forget(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.slots, messageID)
}

// Len returns the number of slots currently reserved.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.slots)
}

// NewMessageID mints a fresh, collision-resistant message id: a random
// UUID concatenated with a monotonic millisecond timestamp, per the
// registry's "statistically impossible collision" requirement.
func NewMessageID() string {
	return fmt.Sprintf("%s_%d", uuid.NewString(), time.Now().UnixMilli())
}
