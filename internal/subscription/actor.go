package subscription

// Actor serializes concurrent callers onto the single goroutine a Registry
// requires: it is not safe to call Registry's methods concurrently with
// each other. The UDP listener and the HTTP dispatcher both run on their
// own goroutines; they reach the registry only through an Actor, never by
// calling Registry's methods directly.
//
// This is the Go-idiomatic rendering of "one event loop" for a data
// structure that assumes it is never called concurrently with itself.
type Actor struct {
	reg  *Registry
	ops  chan func()
	done chan struct{}
}

// NewActor starts the registry's owning goroutine and returns the handle
// callers use instead of the Registry directly.
func NewActor(reg *Registry) *Actor {
	a := &Actor{reg: reg, ops: make(chan func()), done: make(chan struct{})}
	go a.run()
	return a
}

func (a *Actor) run() {
	for {
		select {
		case op := <-a.ops:
			op()
		case <-a.done:
			return
		}
	}
}

// Stop shuts down the owning goroutine. Pending calls already in flight
// complete; calls made after Stop block forever, so callers must not use
// an Actor after stopping it.
func (a *Actor) Stop() {
	close(a.done)
}

func (a *Actor) do(fn func()) {
	reply := make(chan struct{})
	a.ops <- func() {
		fn()
		close(reply)
	}
	<-reply
}

func (a *Actor) Announce(key, name string, modifier1, modifier2 byte, regexpFlag bool) (h Handle, err error) {
	a.do(func() { h, err = a.reg.Announce(key, name, modifier1, modifier2, regexpFlag) })
	return
}

func (a *Actor) Select(key string, mode Mode) (h Handle, ok bool) {
	a.do(func() { h, ok = a.reg.Select(key, mode) })
	return
}

func (a *Actor) Release(h Handle) {
	a.do(func() { a.reg.Release(h) })
}

func (a *Actor) Remove(key, name string, mode Mode) (removed bool) {
	a.do(func() { removed = a.reg.Remove(key, name, mode) })
	return
}

func (a *Actor) LookupByName(key, name string, mode Mode) (h Handle, ok bool) {
	a.do(func() { h, ok = a.reg.LookupByName(key, name, mode) })
	return
}

func (a *Actor) Snapshots() (snaps []Snapshot) {
	a.do(func() { snaps = a.reg.Snapshots() })
	return
}
