package transport

import (
	"net"
	"sync"
)

// SparePool keeps at most one pre-dialed connection ready to hand to a
// session that needs to reconnect, so a Takeover doesn't have to pay dial
// latency on the hot path: a single background slot, since an RpcSession
// only ever needs one live connection at a time.
type SparePool struct {
	mu      sync.Mutex
	slot    chan net.Conn
	addr    string
	network string
	dialing bool
	closed  bool
}

// NewSparePool returns an empty pool that dials network/addr lazily.
// Call Warm to start filling the slot in the background.
func NewSparePool(network, addr string) *SparePool {
	return &SparePool{
		slot:    make(chan net.Conn, 1),
		addr:    addr,
		network: network,
	}
}

// Warm kicks off a background dial that fills the spare slot, unless one is
// already in flight or the slot is already full. Safe to call repeatedly.
func (p *SparePool) Warm() {
	p.mu.Lock()
	if p.closed || p.dialing || len(p.slot) > 0 {
		p.mu.Unlock()
		return
	}
	p.dialing = true
	p.mu.Unlock()

	go func() {
		conn, err := DialWithBackoff(p.network, p.addr, BackoffSchedule)
		p.mu.Lock()
		p.dialing = false
		closed := p.closed
		p.mu.Unlock()

		if err != nil {
			return
		}
		if closed {
			conn.Close()
			return
		}
		select {
		case p.slot <- conn:
		default:
			conn.Close()
		}
	}()
}

// Take removes and returns the spare connection if one is ready, and
// triggers a fresh Warm so the slot starts refilling immediately.
func (p *SparePool) Take() (net.Conn, bool) {
	select {
	case conn := <-p.slot:
		p.Warm()
		return conn, true
	default:
		return nil, false
	}
}

// Close discards any spare connection and prevents further warming.
func (p *SparePool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	select {
	case conn := <-p.slot:
		return conn.Close()
	default:
		return nil
	}
}
