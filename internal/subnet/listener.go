// Package subnet implements the UDP listener side of the daemon: it
// receives one subscription datagram per packet, decodes it with
// internal/wire, and feeds the result to the registry's owning goroutine
// through a subscription.Actor.
package subnet

import (
	"errors"
	"log"
	"net"

	"subscriptiond/internal/obs"
	"subscriptiond/internal/subscription"
	"subscriptiond/internal/wire"
)

const maxDatagramSize = 4096

// Listener owns one UDP socket. Every announcement mode for this
// listener is either literal or pattern, not mixed per-datagram: the
// wire format carries no regexp flag, so the operator's regexp_enabled
// setting applies uniformly to everything this listener receives (mirrors
// uwsgi's subscription-regexp being a listener-wide switch, not a
// per-message one).
type Listener struct {
	conn          *net.UDPConn
	actor         *subscription.Actor
	metrics       *obs.Metrics
	regexpEnabled bool
}

// New binds addr and returns a Listener ready for Serve.
func New(addr string, actor *subscription.Actor, metrics *obs.Metrics, regexpEnabled bool) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Listener{conn: conn, actor: actor, metrics: metrics, regexpEnabled: regexpEnabled}, nil
}

// Addr returns the bound local address, useful when addr was ":0" in tests.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until Close is called. Run it on its own
// goroutine; it returns nil on a clean Close and any other error
// otherwise.
func (l *Listener) Serve() error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.handle(buf[:n])
	}
}

func (l *Listener) handle(datagram []byte) {
	ann, err := wire.Decode(datagram)
	if err != nil {
		log.Printf("subnet: malformed datagram dropped: %v", err)
		return
	}

	_, announceErr := l.actor.Announce(ann.Key, ann.Address, ann.Modifier1, 0, l.regexpEnabled)
	if announceErr != nil {
		log.Printf("subnet: announce rejected for key=%q address=%q: %v", ann.Key, ann.Address, announceErr)
		return
	}

	mode := subscription.Literal
	if l.regexpEnabled {
		mode = subscription.Pattern
	}
	obs.LogRegistryEvent(obs.RegistryEvent{Event: "announce", Key: ann.Key, Mode: mode.String(), NodeAddr: ann.Address})
	if l.metrics != nil {
		l.metrics.RecordAnnounce(mode.String())
	}
}

// Close unblocks Serve and releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}
