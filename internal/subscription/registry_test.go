package subscription

import (
	"testing"
	"time"
)

func newTestRegistry(tolerance time.Duration, regexpEnabled bool) (*Registry, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r := NewRegistry(Config{Tolerance: tolerance, RegexpEnabled: regexpEnabled})
	r.withClock(clk.now)
	return r, clk
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// Scenario 1: single node steady-state.
//
// For a single-node pool, Select's walk can only ever match at position 0,
// so once pool.rr advances past 0 every subsequent select immediately
// overshoots and goes through the fallback scan, which returns the one node
// and leaves rr just past it, at 1. So rr stays at 1 rather than growing
// unboundedly. What the scenario guarantees regardless of that detail:
// every select succeeds, always returns the same node, and hits grows by
// exactly one per select.
func TestSelectSteadyStateSingleNode(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	if _, err := r.Announce("example.com", "10.0.0.1:9000", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}

	for i := 1; i <= 3; i++ {
		h, ok := r.Select("example.com", Literal)
		if !ok {
			t.Fatalf("select %d: expected a match", i)
		}
		if h.Address() != "10.0.0.1:9000" {
			t.Fatalf("select %d: got %q", i, h.Address())
		}
		if got := r.pools[0].hits; got != uint64(i) {
			t.Fatalf("hits after select %d = %d, want %d", i, got, i)
		}
		r.Release(h)
	}

	if got := r.pools[0].rr; got > 1 {
		t.Fatalf("rr = %d, want 0 or 1 for a single-node pool", got)
	}
}

// Scenario 2: round-robin across three nodes.
func TestSelectRoundRobinThreeNodes(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	for _, addr := range []string{"n1", "n2", "n3"} {
		if _, err := r.Announce("r.example", addr, 0, 0, false); err != nil {
			t.Fatalf("announce %s: %v", addr, err)
		}
	}

	want := []string{"n1", "n2", "n3", "n1", "n2", "n3"}
	for i, addr := range want {
		h, ok := r.Select("r.example", Literal)
		if !ok {
			t.Fatalf("select %d: no match", i)
		}
		if h.Address() != addr {
			t.Fatalf("select %d: got %s, want %s", i, h.Address(), addr)
		}
		r.Release(h)
	}
}

// Scenario 3: reference-protected deletion.
func TestReferenceProtectedDeletion(t *testing.T) {
	r, clk := newTestRegistry(10*time.Second, false)
	if _, err := r.Announce("k", "n1", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}

	h, ok := r.Select("k", Literal)
	if !ok {
		t.Fatalf("expected first select to match")
	}
	if h.n.reference != 1 {
		t.Fatalf("reference = %d, want 1", h.n.reference)
	}

	clk.advance(20 * time.Second)

	if _, ok := r.Select("k", Literal); ok {
		t.Fatalf("select should return none while node is referenced")
	}
	if !h.n.deathMark {
		t.Fatalf("node should be death-marked after tolerance elapses")
	}
	if len(r.pools) != 1 || len(r.pools[0].nodes) != 1 {
		t.Fatalf("death-marked but referenced node must survive the sweep")
	}

	r.Release(h)
	if h.n.reference != 0 {
		t.Fatalf("reference after release = %d, want 0", h.n.reference)
	}

	if _, ok := r.Select("k", Literal); ok {
		t.Fatalf("select should return none: node and pool should be gone")
	}
	if len(r.pools) != 0 {
		t.Fatalf("pool should have been removed once empty")
	}
}

// Scenario 6: re-announce clears the death mark.
func TestReannounceClearsDeathMark(t *testing.T) {
	r, clk := newTestRegistry(10*time.Second, false)
	h1, err := r.Announce("k", "n1", 0, 0, false)
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	clk.advance(20 * time.Second)

	h2, err := r.Announce("k", "n1", 0, 0, false)
	if err != nil {
		t.Fatalf("re-announce: %v", err)
	}
	if h2.n != h1.n {
		t.Fatalf("re-announcing an existing (key,name) must not create a new node")
	}
	if h2.n.deathMark {
		t.Fatalf("re-announcement must clear the death mark")
	}

	h, ok := r.Select("k", Literal)
	if !ok {
		t.Fatalf("select should match the refreshed node")
	}
	if h.n != h1.n {
		t.Fatalf("select should return the same node instance")
	}
}

// Scenario 4: auto-promotion.
func TestAutoPromotion(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	for _, key := range []string{"A", "B", "C"} {
		if _, err := r.Announce(key, key+"-node", 0, 0, false); err != nil {
			t.Fatalf("announce %s: %v", key, err)
		}
	}

	for i := 0; i < 5; i++ {
		h, ok := r.Select("C", Literal)
		if !ok {
			t.Fatalf("select C %d: no match", i)
		}
		r.Release(h)
	}
	if h, ok := r.Select("A", Literal); ok {
		r.Release(h)
	}
	if h, ok := r.Select("B", Literal); ok {
		r.Release(h)
	}

	keys := make([]string, len(r.pools))
	for i, p := range r.pools {
		keys[i] = p.key
	}
	if len(keys) != 3 || keys[0] != "C" || keys[1] != "A" || keys[2] != "B" {
		t.Fatalf("pool order = %v, want [C A B]", keys)
	}
}

// Scenario 5: pattern-pool ordering.
func TestPatternPoolOrdering(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, true)
	for _, key := range []string{`^a$`, `^abcdef$`, `^ab$`} {
		if _, err := r.Announce(key, "node-"+key, 0, 0, true); err != nil {
			t.Fatalf("announce %s: %v", key, err)
		}
	}

	lens := make([]int, len(r.pools))
	for i, p := range r.pools {
		lens[i] = len(p.key)
	}
	if len(lens) != 3 || lens[0] != 4 || lens[1] != 5 || lens[2] != 8 {
		t.Fatalf("pool key lengths = %v, want [4 5 8]", lens)
	}
}

func TestPatternPoolInsertBeforeHead(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, true)
	if _, err := r.Announce(`^abcdef$`, "n1", 0, 0, true); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if _, err := r.Announce(`^a$`, "n2", 0, 0, true); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if r.pools[0].key != `^a$` || r.pools[1].key != `^abcdef$` {
		t.Fatalf("shorter pattern should become the new head")
	}
}

func TestPatternLookupFirstMatchWins(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, true)
	if _, err := r.Announce(`^a.*$`, "wide", 0, 0, true); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if _, err := r.Announce(`^abc$`, "narrow", 0, 0, true); err != nil {
		t.Fatalf("announce: %v", err)
	}
	// both patterns are 5 bytes long; an equal-length pattern pool is placed
	// after the existing one, so wide (announced first) is tried first
	h, ok := r.Select("abc", Pattern)
	if !ok {
		t.Fatalf("expected a pattern match")
	}
	if h.Address() != "wide" {
		t.Fatalf("first match in pool order should win, got %s", h.Address())
	}
}

// Boundary: B1.
func TestAnnounceKeyLengthBoundary(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	ok255 := make([]byte, 255)
	for i := range ok255 {
		ok255[i] = 'a'
	}
	if _, err := r.Announce(string(ok255), "n", 0, 0, false); err != nil {
		t.Fatalf("keylen 255 should succeed: %v", err)
	}

	bad256 := make([]byte, 256)
	for i := range bad256 {
		bad256[i] = 'a'
	}
	if _, err := r.Announce(string(bad256), "n", 0, 0, false); err != ErrKeyTooLong {
		t.Fatalf("keylen 256 should fail with ErrKeyTooLong, got %v", err)
	}
}

func TestAnnounceNameTooLong(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	bad := make([]byte, 256)
	if _, err := r.Announce("k", string(bad), 0, 0, false); err != ErrNameTooLong {
		t.Fatalf("namelen 256 should fail with ErrNameTooLong, got %v", err)
	}
}

func TestAnnouncePatternCompileFailure(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, true)
	if _, err := r.Announce("(unterminated", "n", 0, 0, true); err != ErrPatternCompile {
		t.Fatalf("expected ErrPatternCompile, got %v", err)
	}
	if len(r.pools) != 0 {
		t.Fatalf("a failed pattern compile must leave no pool behind")
	}
}

func TestAnnouncePatternDisabledRejected(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	if _, err := r.Announce(`^a$`, "n", 0, 0, true); err != ErrPatternCompile {
		t.Fatalf("pattern mode should be rejected when disabled, got %v", err)
	}
}

// I7: re-announcing an existing (key, name) does not increase node count.
func TestReannounceDoesNotDuplicateNode(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	for i := 0; i < 3; i++ {
		if _, err := r.Announce("k", "n1", 0, 0, false); err != nil {
			t.Fatalf("announce %d: %v", i, err)
		}
	}
	if len(r.pools[0].nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(r.pools[0].nodes))
	}
}

func TestRemoveExplicit(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	if _, err := r.Announce("k", "n1", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if !r.Remove("k", "n1", Literal) {
		t.Fatalf("remove should succeed")
	}
	if len(r.pools) != 0 {
		t.Fatalf("pool should be gone after its last node is removed")
	}
	if r.Remove("k", "n1", Literal) {
		t.Fatalf("removing a gone node should report false")
	}
}

func TestLookupByName(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	if _, err := r.Announce("k", "n1", 7, 9, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	h, ok := r.LookupByName("k", "n1", Literal)
	if !ok {
		t.Fatalf("lookup_by_name should find the node")
	}
	m1, m2 := h.Modifiers()
	if m1 != 7 || m2 != 9 {
		t.Fatalf("modifiers = (%d,%d), want (7,9)", m1, m2)
	}
	if _, ok := r.LookupByName("k", "missing", Literal); ok {
		t.Fatalf("lookup_by_name should miss an unknown name")
	}
}

func TestSelectNoMatchOnEmptyRegistry(t *testing.T) {
	r, _ := newTestRegistry(time.Minute, false)
	if _, ok := r.Select("nothing", Literal); ok {
		t.Fatalf("expected no match")
	}
}

// Boundary: B2 -- after tolerance+epsilon with no re-announcement, the
// next select either skips (if still referenced) or removes the node.
func TestStaleNodeSkippedOrRemovedAfterTolerance(t *testing.T) {
	r, clk := newTestRegistry(5*time.Second, false)
	if _, err := r.Announce("k", "n1", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	clk.advance(5*time.Second + time.Millisecond)

	// unreferenced: the next select removes it outright.
	if _, ok := r.Select("k", Literal); ok {
		t.Fatalf("stale unreferenced node should not be selectable")
	}
	if len(r.pools) != 0 {
		t.Fatalf("pool with only a stale unreferenced node should be removed")
	}
}

// checkInvariants walks the registry's internal state and verifies I1
// (every pool non-empty) and I2 (every node's back-reference points at a
// pool that is actually in the registry and contains it).
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	for _, p := range r.pools {
		if p.empty() {
			t.Fatalf("I1 violated: empty pool %q present in registry", p.key)
		}
		for _, n := range p.nodes {
			if n.pool != p {
				t.Fatalf("I2 violated: node %q back-reference does not match owning pool", n.name)
			}
			found := false
			for _, candidate := range p.nodes {
				if candidate == n {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("I2 violated: node %q not found in its own pool's node list", n.name)
			}
		}
	}
}

func TestInvariantsHoldAcrossMixedOperations(t *testing.T) {
	r, clk := newTestRegistry(10*time.Second, true)

	if _, err := r.Announce("host-a", "1.1.1.1:80", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if _, err := r.Announce("host-a", "1.1.1.2:80", 0, 0, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if _, err := r.Announce(`^host-b\d+$`, "2.2.2.2:80", 0, 0, true); err != nil {
		t.Fatalf("announce pattern: %v", err)
	}
	checkInvariants(t, r)

	h, ok := r.Select("host-a", Literal)
	if !ok {
		t.Fatalf("expected a match")
	}
	checkInvariants(t, r)
	r.Release(h)
	checkInvariants(t, r)

	clk.advance(20 * time.Second)
	// refresh one node so the sweep evicts only the other and the pool survives
	if _, err := r.Announce("host-a", "1.1.1.2:80", 0, 0, false); err != nil {
		t.Fatalf("re-announce: %v", err)
	}
	r.Select("host-a", Literal)
	checkInvariants(t, r)

	if !r.Remove("host-a", "1.1.1.2:80", Literal) {
		t.Fatalf("remove should succeed")
	}
	checkInvariants(t, r)

	r.Select(`host-b42`, Pattern)
	checkInvariants(t, r)
}
