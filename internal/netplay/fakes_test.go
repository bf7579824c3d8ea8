package netplay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netplay/internal/config"
	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/signaling"
	"github.com/1ureka/netplay/internal/transport"
)

// recorder collects collaborator calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type message struct {
	Text       string
	Persistent bool
	IsError    bool
}

type fakeRoom struct {
	mu       sync.Mutex
	messages []message
	modes    []string
}

func (r *fakeRoom) ShowMessage(text string, persistent, isError bool) {
	r.mu.Lock()
	r.messages = append(r.messages, message{text, persistent, isError})
	r.mu.Unlock()
}

func (r *fakeRoom) mode(m string) {
	r.mu.Lock()
	r.modes = append(r.modes, m)
	r.mu.Unlock()
}

func (r *fakeRoom) EnterPendingMode()    { r.mode("pending") }
func (r *fakeRoom) EnterClientMode()     { r.mode("client") }
func (r *fakeRoom) EnterStandaloneMode() { r.mode("standalone") }

func (r *fakeRoom) takeMessages() []message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

func (r *fakeRoom) takeModes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.modes
	r.modes = nil
	return out
}

type fakeMachine struct{ rec *recorder }

func (m fakeMachine) LoadStateExtended(state json.RawMessage) { m.rec.add("machine.load %s", state) }
func (m fakeMachine) ControlStateChanged(c MachineControl, pressed bool) {
	m.rec.add("machine.control %s %t", c, pressed)
}
func (m fakeMachine) VideoClockPulse() { m.rec.add("machine.pulse") }

type fakeKeyboard struct{ rec *recorder }

func (k fakeKeyboard) LoadState(state json.RawMessage) { k.rec.add("keyboard.load %s", state) }
func (k fakeKeyboard) ApplyMatrixChange(line, column int, pressed bool) {
	k.rec.add("keyboard.change %d,%d %t", line, column, pressed)
}
func (k fakeKeyboard) ClockPulse() { k.rec.add("keyboard.pulse") }

type fakeHub struct {
	rec   *recorder
	mu    sync.Mutex
	ports protocol.PortValues
}

func (h *fakeHub) ControllersClockPulse() { h.rec.add("hub.pulse") }
func (h *fakeHub) ReadLocalControllerPort(port int) uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ports[port]
}
func (h *fakeHub) set(p protocol.PortValues) {
	h.mu.Lock()
	h.ports = p
	h.mu.Unlock()
}

type fakeDisk struct{ rec *recorder }

func (d fakeDisk) NetProcessOperations(ops json.RawMessage) { d.rec.add("disk.ops %s", ops) }

type fakeLink struct {
	url      string
	handler  signaling.Handler
	sent     []protocol.Message
	sendErr  error
	detached int
	closed   int
}

func (l *fakeLink) Send(m protocol.Message) error {
	if l.closed > 0 {
		return signaling.ErrNotOpen
	}
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, m)
	return nil
}

func (l *fakeLink) Detach() { l.detached++ }

// Close mimics a real link whose handler is still attached: it reports the
// close unless Detach ran first.
func (l *fakeLink) Close() error {
	l.closed++
	if l.detached == 0 && l.handler.OnClose != nil {
		l.handler.OnClose(errors.New("closed"))
	}
	return nil
}

// updates returns the relayed updates sent on the link.
func (l *fakeLink) updates() []string {
	var out []string
	for _, m := range l.sent {
		if r, ok := m.(protocol.RelayUpdate); ok {
			out = append(out, r.Update)
		}
	}
	return out
}

type fakePeer struct {
	cfg       webrtc.Configuration
	handler   transport.PeerHandler
	answerErr error
	sendErr   error
	answered  []webrtc.SessionDescription
	frames    []string
	mu        sync.Mutex
	detached  int
	closed    int
}

func (p *fakePeer) Answer(offer webrtc.SessionDescription) error {
	p.answered = append(p.answered, offer)
	return p.answerErr
}

func (p *fakePeer) SendText(text string) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, text)
	return nil
}

func (p *fakePeer) Detach() { p.detached++ }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// harness wires a Client to fakes and runs its event loop by hand.
type harness struct {
	t       *testing.T
	c       *Client
	room    *fakeRoom
	rec     *recorder
	hub     *fakeHub
	links   []*fakeLink
	peers   []*fakePeer
	peerErr error
	delayed []func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, room: &fakeRoom{}, rec: &recorder{}}
	h.hub = &fakeHub{rec: h.rec, ports: protocol.ReleasedPorts()}

	cfg := config.Default()
	cfg.ServerURL = "ws://rendezvous.test"
	cfg.KeepAliveInterval = time.Hour

	deps := Deps{
		Room:     h.room,
		Machine:  fakeMachine{h.rec},
		Keyboard: fakeKeyboard{h.rec},
		Hub:      h.hub,
		Disk:     fakeDisk{h.rec},
	}

	dial := func(url string, handler signaling.Handler) Link {
		l := &fakeLink{url: url, handler: handler}
		h.links = append(h.links, l)
		return l
	}
	newPeer := func(cfg webrtc.Configuration, handler transport.PeerHandler) (Peer, error) {
		if h.peerErr != nil {
			return nil, h.peerErr
		}
		p := &fakePeer{cfg: cfg, handler: handler}
		h.peers = append(h.peers, p)
		return p, nil
	}

	c, err := New(cfg, deps, dial, newPeer)
	require.NoError(t, err)
	c.async = func(fn func()) { fn() }
	c.after = func(_ time.Duration, fn func()) { h.delayed = append(h.delayed, fn) }
	h.c = c

	t.Cleanup(func() {
		if c.keepAlive != nil {
			c.keepAlive.stop()
		}
	})
	return h
}

// drain runs every queued event, including events posted while draining.
func (h *harness) drain() {
	for {
		select {
		case fn := <-h.c.events:
			fn()
		default:
			return
		}
	}
}

func (h *harness) link() *fakeLink {
	require.NotEmpty(h.t, h.links, "no link dialed")
	return h.links[len(h.links)-1]
}

func (h *harness) peer() *fakePeer {
	require.NotEmpty(h.t, h.peers, "no peer created")
	return h.peers[len(h.peers)-1]
}

// serverSays delivers a server envelope on the current link.
func (h *harness) serverSays(m protocol.Message) {
	h.link().handler.OnMessage(m)
	h.drain()
}

// joinRelay joins id over a relay-only session and clears the recorders.
func (h *harness) joinRelay(id, nick string) {
	require.NoError(h.t, h.c.JoinSession(id+"@", nick))
	h.drain()
	h.link().handler.OnOpen()
	h.drain()
	h.serverSays(protocol.SessionJoined{SessionID: id, ClientNick: nick, WSOnly: true})
	h.room.takeMessages()
	h.room.takeModes()
	h.rec.take()
}

// joinPeer joins id and opens the peer channel.
func (h *harness) joinPeer(id, nick string) {
	require.NoError(h.t, h.c.JoinSession(id, nick))
	h.drain()
	h.link().handler.OnOpen()
	h.drain()
	h.serverSays(protocol.SessionJoined{SessionID: id, ClientNick: nick})
	h.peer().handler.OnChannelOpen()
	h.drain()
	h.room.takeMessages()
	h.room.takeModes()
	h.rec.take()
}
