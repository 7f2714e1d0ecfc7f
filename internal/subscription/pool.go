package subscription

import "github.com/coregx/coregex"

// pool holds every node subscribed under one key (literal or pattern).
//
// nodes is kept in insertion order: that order is the round-robin order,
// so append/unlink must preserve it exactly (no reordering on removal).
type pool struct {
	key     string
	mode    Mode
	pattern *coregex.Regex // set iff mode == Pattern
	nodes   []*node
	hits    uint64
	rr      uint64
}

func newLiteralPool(key string) *pool {
	return &pool{key: key, mode: Literal}
}

func newPatternPool(key string, compiled *coregex.Regex) *pool {
	return &pool{key: key, mode: Pattern, pattern: compiled}
}

func (p *pool) matches(key string) bool {
	if p.mode == Pattern {
		return p.pattern.MatchString(key)
	}
	return p.key == key
}

// findNodeByName performs a linear scan for name.
func (p *pool) findNodeByName(name string) *node {
	for _, n := range p.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// appendNode adds a node to the tail, preserving round-robin order.
func (p *pool) appendNode(n *node) {
	n.pool = p
	p.nodes = append(p.nodes, n)
}

// unlinkNode removes a node without freeing it -- freeing (dropping the
// last reference so it becomes garbage) is the caller's job.
func (p *pool) unlinkNode(n *node) {
	for i, candidate := range p.nodes {
		if candidate == n {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
			return
		}
	}
}

func (p *pool) empty() bool {
	return len(p.nodes) == 0
}
