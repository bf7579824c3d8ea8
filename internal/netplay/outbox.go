package netplay

import (
	"sync"

	"github.com/1ureka/netplay/internal/protocol"
)

// outbox accumulates local input between ticks. Producers may call from any
// goroutine; the event loop drains it once per tick.
type outbox struct {
	mu       sync.Mutex
	controls []protocol.ControlChange
	keys     []protocol.KeyChange
	lastSent protocol.PortValues
	received protocol.PortValues // host's view of the controller ports
}

func newOutbox() *outbox {
	return &outbox{
		lastSent: protocol.ReleasedPorts(),
		received: protocol.ReleasedPorts(),
	}
}

func (o *outbox) pushControl(c protocol.ControlChange) {
	o.mu.Lock()
	o.controls = append(o.controls, c)
	o.mu.Unlock()
}

func (o *outbox) pushKey(k protocol.KeyChange) {
	o.mu.Lock()
	o.keys = append(o.keys, k)
	o.mu.Unlock()
}

// discard drops queued events without touching the port diff.
func (o *outbox) discard() {
	o.mu.Lock()
	o.controls, o.keys = nil, nil
	o.mu.Unlock()
}

// reset discards queued events and forgets the last sent ports.
func (o *outbox) reset() {
	o.mu.Lock()
	o.controls, o.keys = nil, nil
	o.lastSent = protocol.ReleasedPorts()
	o.mu.Unlock()
}

func (o *outbox) setPorts(p protocol.PortValues) {
	o.mu.Lock()
	o.received = p
	o.mu.Unlock()
}

func (o *outbox) ports() protocol.PortValues {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.received
}

// drain builds this tick's outbound update and empties the queues. Both
// port values are included whenever either differs from the last sent pair.
func (o *outbox) drain(local protocol.PortValues) protocol.Incremental {
	o.mu.Lock()
	defer o.mu.Unlock()

	u := protocol.Incremental{Controls: o.controls, Keys: o.keys}
	o.controls, o.keys = nil, nil

	if local != o.lastSent {
		o.lastSent = local
		u.Ports = &local
	}
	return u
}
