// Package subscription implements the in-memory subscription registry: an
// ordered sequence of pools, each holding the backend nodes announced for
// one routing key, plus the selection and eviction logic that keeps it
// current under continuous churn.
//
// Every exported method on Registry is pure in-memory computation with no
// suspension points: callers are expected to serialize access to a single
// Registry onto one goroutine. See subscription.Actor for the
// goroutine-safe wrapper used by the rest of this repository.
package subscription

import (
	"time"

	"github.com/coregx/coregex"
)

// Registry is the process-wide ordered sequence of pools. The zero value
// is not usable; construct with NewRegistry.
type Registry struct {
	pools         []*pool
	tolerance     time.Duration
	regexpEnabled bool
	now           func() time.Time
	onEvict       func(key string, mode Mode)
	onRemove      func(key string, mode Mode)
}

// Config carries the registry's two operator-facing knobs, plus optional
// observation hooks for the admin metrics surface.
type Config struct {
	// Tolerance is subscription_tolerance: how long a node may go without
	// a re-announcement before it is death-marked.
	Tolerance time.Duration
	// RegexpEnabled gates pattern-mode announcements and lookups. When
	// false, an Announce with regexpFlag=true that would create a new pool
	// fails with ErrPatternCompile (one whose key already names a pool joins
	// that pool), and Select/LookupByName/Remove reject Pattern mode
	// outright.
	RegexpEnabled bool
	// OnEvict, if set, is called whenever Select's lazy sweep unlinks a
	// death-marked, unreferenced node. Never called concurrently with
	// anything else touching this Registry, since Select itself isn't.
	OnEvict func(key string, mode Mode)
	// OnRemove, if set, is called whenever Remove unlinks a node.
	OnRemove func(key string, mode Mode)
}

// NewRegistry builds an empty registry. now defaults to time.Now; tests
// inject a deterministic clock to exercise tolerance without sleeping.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		tolerance:     cfg.Tolerance,
		regexpEnabled: cfg.RegexpEnabled,
		now:           time.Now,
		onEvict:       cfg.OnEvict,
		onRemove:      cfg.OnRemove,
	}
}

// withClock overrides the registry's notion of "now". Test-only knob.
func (r *Registry) withClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Announce records a node's (re-)subscription to key: an existing node with
// the same name has its last-check time refreshed and its death mark
// cleared; otherwise a new node is appended to the pool, creating the pool
// if this is the first announcement under key.
func (r *Registry) Announce(key, name string, modifier1, modifier2 byte, regexpFlag bool) (Handle, error) {
	if len(key) > MaxLen {
		return Handle{}, ErrKeyTooLong
	}
	if len(name) > MaxLen {
		return Handle{}, ErrNameTooLong
	}

	now := r.now()

	if p := r.findLiteralPool(key); p != nil {
		if n := p.findNodeByName(name); n != nil {
			n.touch(now)
			return Handle{n: n}, nil
		}
		n := newNode(name, modifier1, modifier2, now, p)
		p.appendNode(n)
		return Handle{n: n}, nil
	}

	var compiled *coregex.Regex
	if regexpFlag {
		if !r.regexpEnabled {
			return Handle{}, ErrPatternCompile
		}
		re, err := coregex.Compile(key)
		if err != nil {
			return Handle{}, ErrPatternCompile
		}
		compiled = re
	}

	var p *pool
	if regexpFlag {
		p = newPatternPool(key, compiled)
	} else {
		p = newLiteralPool(key)
	}
	n := newNode(name, modifier1, modifier2, now, p)
	p.appendNode(n)
	r.insertPool(p)
	return Handle{n: n}, nil
}

// Select is the single entry point request routing calls per request: it
// finds key's pool, sweeps it for death-marked unreferenced nodes, and
// returns the next live node in round-robin order. Mode picks whether key
// is matched literally or against every pattern pool's compiled regexp.
func (r *Registry) Select(key string, mode Mode) (Handle, bool) {
	p, idx := r.lookup(key, mode)
	if p == nil {
		return Handle{}, false
	}
	p.hits++

	now := r.now()
	i := 0
	for i < len(p.nodes) {
		n := p.nodes[i]
		if n.stale(now, r.tolerance) {
			n.deathMark = true
		}
		if n.deathMark {
			if n.reference == 0 {
				p.unlinkNode(n)
				if r.onEvict != nil {
					r.onEvict(key, mode)
				}
				if p.empty() {
					r.removePoolAt(idx)
					return Handle{}, false
				}
				continue // re-examine the node now at position i
			}
			// Death-marked but still referenced: survives the sweep (I3)
			// but is never a selection candidate (I6), so it occupies
			// this position without ever satisfying i == pool.rr.
			i++
			continue
		}
		if uint64(i) == p.rr {
			p.rr++
			n.reference++
			return Handle{n: n}, true
		}
		i++
	}

	// rr overshot the live length: reset and fall back to the first live
	// (non-death-marked) node, if any. A blind "return the head" here
	// would violate I6 whenever the head is itself death-marked-but-
	// referenced (reachable: see TestReferenceProtectedDeletion), so the
	// fallback scan explicitly skips any node still carrying a death mark.
	// The cursor is left just past the node returned, so the next select
	// continues with the node after it.
	p.rr = 0
	for j, n := range p.nodes {
		if !n.deathMark {
			p.rr = uint64(j) + 1
			n.reference++
			return Handle{n: n}, true
		}
	}
	return Handle{}, false
}

// Release decrements the handle's reference count. Required for every
// successful Select.
func (r *Registry) Release(h Handle) {
	if h.n == nil {
		return
	}
	if h.n.reference > 0 {
		h.n.reference--
	}
}

// Remove unlinks the named node from key's pool, unconditionally -- unlike
// Select's lazy eviction, it does not check reference count or death mark.
func (r *Registry) Remove(key, name string, mode Mode) bool {
	p, idx := r.lookup(key, mode)
	if p == nil {
		return false
	}
	n := p.findNodeByName(name)
	if n == nil {
		return false
	}
	p.unlinkNode(n)
	if r.onRemove != nil {
		r.onRemove(key, mode)
	}
	if p.empty() {
		r.removePoolAt(idx)
	}
	return true
}

// LookupByName reports whether a named node is currently subscribed under
// key and mode, without affecting round-robin cursor or reference counts.
func (r *Registry) LookupByName(key, name string, mode Mode) (Handle, bool) {
	p, _ := r.lookup(key, mode)
	if p == nil {
		return Handle{}, false
	}
	n := p.findNodeByName(name)
	if n == nil {
		return Handle{}, false
	}
	return Handle{n: n}, true
}

// Snapshot describes one pool for diagnostics (internal/admin).
type Snapshot struct {
	Key   string
	Mode  Mode
	Hits  uint64
	Nodes int
}

// Snapshots returns the registry's pools in their current order. Used only
// by the admin/diagnostic surface -- never by anything that feeds back
// into routing decisions.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, Snapshot{Key: p.key, Mode: p.mode, Hits: p.hits, Nodes: len(p.nodes)})
	}
	return out
}

// findLiteralPool is used by Announce, which always matches literally --
// announcements never come in as patterns -- so key is compared
// byte-for-byte against every pool's stored key, a pattern pool's source
// pattern included. It must NOT trigger auto-promotion: insertion order is
// a separate concern from lookup order, and promotion is a lookup-time
// effect only.
func (r *Registry) findLiteralPool(key string) *pool {
	for _, p := range r.pools {
		if p.key == key {
			return p
		}
	}
	return nil
}

// lookup scans the pools in order for the first one matching key under
// mode, applying auto-promotion on a literal match. Returns the pool and
// its index after any promotion has been applied.
func (r *Registry) lookup(key string, mode Mode) (*pool, int) {
	if mode == Pattern && !r.regexpEnabled {
		return nil, -1
	}
	for i, p := range r.pools {
		if p.mode != mode {
			continue
		}
		if !p.matches(key) {
			continue
		}
		if mode == Literal {
			return r.promote(i)
		}
		return p, i
	}
	return nil, -1
}

// promote applies the move-ahead-one auto-promotion: if the predecessor
// has strictly fewer hits, swap the pair. At most one promotion happens
// per lookup.
func (r *Registry) promote(i int) (*pool, int) {
	p := r.pools[i]
	if i == 0 {
		return p, i
	}
	prev := r.pools[i-1]
	if p.hits > prev.hits {
		r.pools[i-1], r.pools[i] = p, prev
		return p, i - 1
	}
	return p, i
}

// insertPool places a newly created pool in the registry's ordering:
// pattern pools are inserted immediately before the first pool whose
// keylen strictly exceeds the new pool's, fixing up neighbors directly;
// literal pools are always appended at the tail.
func (r *Registry) insertPool(p *pool) {
	if len(r.pools) == 0 {
		r.pools = []*pool{p}
		return
	}
	if p.mode == Literal {
		r.pools = append(r.pools, p)
		return
	}
	for i, candidate := range r.pools {
		if len(candidate.key) > len(p.key) {
			r.pools = append(r.pools, nil)
			copy(r.pools[i+1:], r.pools[i:])
			r.pools[i] = p
			return
		}
	}
	r.pools = append(r.pools, p)
}

func (r *Registry) removePoolAt(idx int) {
	if idx < 0 || idx >= len(r.pools) {
		return
	}
	r.pools = append(r.pools[:idx], r.pools[idx+1:]...)
}
