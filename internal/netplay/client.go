// Package netplay implements the client side of a NetPlay session: the join
// handshake with the rendezvous service, peer negotiation with relay
// fallback, the per-tick synchronization with the host, and the capability
// gate for local actions.
//
// Every state transition runs on a single event loop (Run). Callbacks from
// the WebSocket and WebRTC goroutines only post closures to that loop.
package netplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netplay/internal/config"
	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/signaling"
	"github.com/1ureka/netplay/internal/transport"
	"github.com/1ureka/netplay/internal/util"
)

// wsOnlySuffix on a requested session ID asks for relay-only transport.
const wsOnlySuffix = "@"

// User-facing status messages.
const (
	msgNeedSessionID    = "Must enter Session Name for joining NetPlay session"
	msgSessionEnded     = "NetPlay session ended"
	msgConnectionFailed = "NetPlay: Connection error"
	msgConnectionLost   = "NetPlay session ended: Connection lost"
	msgConnectionError  = "NetPlay session ended: Connection error"
	msgP2PError         = "NetPlay session ended: P2P connection error"
	msgP2PLost          = "NetPlay session ended: P2P connection lost"
)

// ErrEmptySessionID is returned by JoinSession when no session name is given.
var ErrEmptySessionID = errors.New("empty session id")

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Room is the surrounding application: it shows status messages and follows
// the client's mode transitions. It is only called from the event loop.
type Room interface {
	ShowMessage(text string, persistent, isError bool)
	EnterPendingMode()
	EnterClientMode()
	EnterStandaloneMode()
}

// Machine is the emulated machine the host's updates are applied to.
type Machine interface {
	LoadStateExtended(state json.RawMessage)
	ControlStateChanged(control MachineControl, pressed bool)
	VideoClockPulse()
}

// Keyboard is the local keyboard matrix device.
type Keyboard interface {
	LoadState(state json.RawMessage)
	ApplyMatrixChange(line, column int, pressed bool)
	ClockPulse()
}

// ControllersHub owns the local joystick and mouse ports.
type ControllersHub interface {
	ControllersClockPulse()
	ReadLocalControllerPort(port int) uint8
}

// DiskDrive replays the host's drive operations.
type DiskDrive interface {
	NetProcessOperations(ops json.RawMessage)
}

// Deps groups the collaborators a Client drives.
type Deps struct {
	Room     Room
	Machine  Machine
	Keyboard Keyboard
	Hub      ControllersHub
	Disk     DiskDrive
}

func (d Deps) validate() error {
	switch {
	case d.Room == nil:
		return errors.New("missing room")
	case d.Machine == nil:
		return errors.New("missing machine")
	case d.Keyboard == nil:
		return errors.New("missing keyboard")
	case d.Hub == nil:
		return errors.New("missing controllers hub")
	case d.Disk == nil:
		return errors.New("missing disk drive")
	}
	return nil
}

// Link is the rendezvous connection. *signaling.Conn implements it.
type Link interface {
	Send(protocol.Message) error
	Detach()
	Close() error
}

// Peer is the WebRTC side of a session. *transport.Peer implements it.
type Peer interface {
	Answer(offer webrtc.SessionDescription) error
	SendText(text string) error
	Detach()
	Close() error
}

// DialFunc opens a rendezvous link that reports through h.
type DialFunc func(url string, h signaling.Handler) Link

// PeerFunc creates a peer that reports through h.
type PeerFunc func(cfg webrtc.Configuration, h transport.PeerHandler) (Peer, error)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type pendingJoin struct {
	id     string
	nick   string
	wsOnly bool
}

type session struct {
	id     string
	nick   string
	wsOnly bool
}

func (s *session) matches(req pendingJoin) bool {
	return s.id == req.id && s.nick == req.nick && s.wsOnly == req.wsOnly
}

// Status is a snapshot of the client's session for callers outside the loop.
type Status struct {
	SessionID string
	Nick      string
	Mode      transport.Mode
}

// Client is a NetPlay client attached to at most one session at a time.
type Client struct {
	cfg     config.Config
	deps    Deps
	gate    *Gate
	dial    DialFunc
	newPeer PeerFunc

	events chan func()
	done   chan struct{}

	// Scheduling hooks, replaced in tests.
	async func(fn func())
	after func(d time.Duration, fn func())

	// Owned by the event loop.
	pending   *pendingJoin
	session   *session
	link      Link
	linkOpen  bool
	peer      Peer
	keepAlive *keepAlive
	tr        *transport.Transport

	out *outbox

	statusMu sync.RWMutex
	status   Status
}

// New creates an idle client. Call Run to start its event loop.
func New(cfg config.Config, deps Deps, dial DialFunc, newPeer PeerFunc) (*Client, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("netplay client: %w", err)
	}

	gate, err := NewGate(cfg.DenyMachineControls, cfg.DenyPeripheralControls)
	if err != nil {
		return nil, fmt.Errorf("netplay client: %w", err)
	}

	return &Client{
		cfg:     cfg,
		deps:    deps,
		gate:    gate,
		dial:    dial,
		newPeer: newPeer,
		events:  make(chan func(), 256),
		done:    make(chan struct{}),
		async:   func(fn func()) { go fn() },
		after:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		tr:      transport.New(cfg.FragmentSize),
		out:     newOutbox(),
	}, nil
}

// Run processes events until ctx is cancelled, then leaves any active
// session gracefully.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-ctx.Done():
			c.leave(false, "")
			return
		}
	}
}

// post schedules fn on the event loop. It is dropped once the loop has exited.
func (c *Client) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// notify shows an error notice from the event loop. Entry points called on
// the simulation's goroutine use it so the Room is only touched by the loop.
func (c *Client) notify(text string) {
	c.post(func() { c.deps.Room.ShowMessage(text, true, true) })
}

// Status returns the current session snapshot.
func (c *Client) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Client) publishStatus() {
	var st Status
	if c.session != nil {
		st = Status{SessionID: c.session.id, Nick: c.session.nick}
	}
	st.Mode = c.tr.Mode()

	c.statusMu.Lock()
	c.status = st
	c.statusMu.Unlock()
}

// NormalizeSessionID trims raw and strips the relay-only suffix. An empty id
// is rejected by JoinSession.
func NormalizeSessionID(raw string) (id string, wsOnly bool) {
	id = strings.TrimSpace(raw)
	if trimmed, ok := strings.CutSuffix(id, wsOnlySuffix); ok {
		id = strings.TrimSpace(trimmed)
		wsOnly = true
	}
	return id, wsOnly
}

// JoinSession asks to join the named session as nick. A trailing "@" on the
// name requests relay-only transport. An empty name is rejected at once with
// ErrEmptySessionID and a status message; otherwise the join proceeds on the
// event loop.
func (c *Client) JoinSession(sessionID, nick string) error {
	id, wsOnly := NormalizeSessionID(sessionID)
	if id == "" {
		c.notify(msgNeedSessionID)
		return ErrEmptySessionID
	}

	req := pendingJoin{id: id, nick: nick, wsOnly: wsOnly}
	c.post(func() { c.join(req) })
	return nil
}

// LeaveSession ends the active session. An empty message selects the
// default status text.
func (c *Client) LeaveSession(wasError bool, message string) {
	c.post(func() { c.leave(wasError, message) })
}

func (c *Client) join(req pendingJoin) {
	if c.session != nil && c.session.matches(req) {
		return
	}
	if c.session != nil {
		c.leave(false, "")
	}

	c.pending = &req
	c.deps.Room.EnterPendingMode()

	switch {
	case c.link == nil:
		c.openLink()
	case c.linkOpen:
		c.onLinkOpen()
	}
}

func (c *Client) openLink() {
	var link Link
	link = c.dial(c.cfg.ServerURL, signaling.Handler{
		OnOpen: func() {
			c.post(func() {
				if c.link == link {
					c.onLinkOpen()
				}
			})
		},
		OnMessage: func(m protocol.Message) {
			c.post(func() {
				if c.link == link {
					c.onMessage(m)
				}
			})
		},
		OnClose: func(err error) {
			c.post(func() {
				if c.link == link {
					c.onLinkClosed(err)
				}
			})
		},
	})
	c.link = link
	c.linkOpen = false
}

func (c *Client) onLinkOpen() {
	c.linkOpen = true

	if c.keepAlive == nil {
		var ka *keepAlive
		ka = startKeepAlive(c.cfg.KeepAliveInterval, func() {
			c.post(func() {
				if c.keepAlive == ka {
					c.sendKeepAlive()
				}
			})
		})
		c.keepAlive = ka
	}

	req := c.pending
	if req == nil {
		return
	}
	err := c.link.Send(protocol.JoinSession{
		SessionType: c.cfg.SessionType,
		SessionID:   req.id,
		ClientNick:  req.nick,
		WSOnly:      req.wsOnly,
	})
	if err != nil {
		util.LogError("failed to send join request: %v", err)
		c.leave(true, msgConnectionError)
	}
}

func (c *Client) onLinkClosed(err error) {
	util.LogDebug("rendezvous link closed: %v", err)
	if c.keepAlive != nil {
		c.leave(true, msgConnectionLost)
	} else {
		c.leave(true, msgConnectionFailed)
	}
}

func (c *Client) sendKeepAlive() {
	if c.link == nil {
		return
	}
	if err := c.link.Send(protocol.KeepAlive{}); err != nil {
		util.LogError("NetPlay error sending keep-alive: %v", err)
		c.leave(true, msgConnectionError)
	}
}

func (c *Client) onMessage(m protocol.Message) {
	switch m := m.(type) {
	case protocol.RelayUpdate:
		if c.session == nil {
			util.LogDebug("dropping relayed update outside a session")
			return
		}
		u, err := c.tr.ReceiveRelay(m)
		if err != nil {
			util.LogWarning("dropping relayed update: %v", err)
			return
		}
		c.tick(u)

	case protocol.SessionJoined:
		c.onSessionJoined(m)

	case protocol.SessionDestroyed:
		c.leave(false, fmt.Sprintf("NetPlay Session %q ended", c.currentSessionID()))

	case protocol.JoinError:
		c.leave(true, "NetPlay: "+m.ErrorMessage)

	case protocol.ServerSDP:
		c.onServerSDP(m)

	default:
		util.LogDebug("ignoring rendezvous message %T", m)
	}
}

// currentSessionID names the joined session, or the one being joined.
func (c *Client) currentSessionID() string {
	switch {
	case c.session != nil:
		return c.session.id
	case c.pending != nil:
		return c.pending.id
	}
	return ""
}

func (c *Client) onSessionJoined(m protocol.SessionJoined) {
	if c.session != nil {
		util.LogWarning("ignoring duplicate sessionJoined for %q", m.SessionID)
		return
	}

	wsOnly := m.WSOnly
	if c.pending != nil {
		wsOnly = wsOnly || c.pending.wsOnly
	}
	c.session = &session{id: m.SessionID, nick: m.ClientNick, wsOnly: wsOnly}
	c.pending = nil

	// Updates are relayed until the peer channel opens, or for the whole
	// session when relay-only.
	c.tr.UseRelay(c.link)
	c.publishStatus()

	if wsOnly {
		c.enterClientMode()
		return
	}

	cfg, err := transport.ParseConfiguration(m.RTCConfig)
	if err != nil {
		util.LogWarning("using default peer configuration: %v", err)
		cfg = webrtc.Configuration{}
	}
	c.startPeer(cfg)
}

func (c *Client) startPeer(cfg webrtc.Configuration) {
	var peer Peer
	peer, err := c.newPeer(cfg, transport.PeerHandler{
		OnLocalDescription: func(sdp webrtc.SessionDescription) {
			c.post(func() {
				if c.peer == peer {
					c.onLocalDescription(sdp)
				}
			})
		},
		OnChannelOpen: func() {
			c.post(func() {
				if c.peer == peer {
					c.onChannelOpen()
				}
			})
		},
		OnChannelClose: func() {
			c.post(func() {
				if c.peer == peer {
					c.onChannelClose()
				}
			})
		},
		OnChannelMessage: func(text string) {
			c.post(func() {
				if c.peer == peer {
					c.onChannelMessage(text)
				}
			})
		},
	})
	if err != nil {
		util.LogError("NetPlay RTC error: %v", err)
		c.leave(true, msgP2PError)
		return
	}
	c.peer = peer
}

func (c *Client) onLocalDescription(sdp webrtc.SessionDescription) {
	if c.link == nil {
		return
	}
	if err := c.link.Send(protocol.ClientSDP{SDP: sdp}); err != nil {
		util.LogError("failed to send local description: %v", err)
		c.leave(true, msgConnectionError)
	}
}

// onServerSDP answers the host's offer off the loop; only a failure comes
// back to it.
func (c *Client) onServerSDP(m protocol.ServerSDP) {
	peer := c.peer
	if peer == nil {
		util.LogWarning("ignoring server SDP without a peer connection")
		return
	}

	c.async(func() {
		if err := peer.Answer(m.SDP); err != nil {
			c.post(func() {
				if c.peer == peer {
					util.LogError("NetPlay RTC error: %v", err)
					c.leave(true, msgP2PError)
				}
			})
		}
	})
}

func (c *Client) onChannelOpen() {
	c.tr.UsePeer(c.peer)
	c.enterClientMode()
}

func (c *Client) onChannelClose() {
	util.LogError("NetPlay dataChannel closed")
	c.leave(true, msgP2PLost)
}

func (c *Client) onChannelMessage(text string) {
	u, ok, err := c.tr.ReceiveFrame(text)
	if err != nil {
		util.LogWarning("dropping peer update: %v", err)
		return
	}
	if ok {
		c.tick(u)
	}
}

func (c *Client) enterClientMode() {
	msg := fmt.Sprintf("NetPlay Session %q joined as %q", c.session.id, c.session.nick)
	c.deps.Room.ShowMessage(msg, true, false)
	util.LogInfo("%s (%s transport)", msg, c.tr.Mode())

	c.out.reset()
	c.deps.Room.EnterClientMode()
	c.publishStatus()
}

// leave tears the session down. Handlers are detached before their resources
// close, so the close itself cannot re-enter leave. Calling leave with
// nothing active is a no-op.
func (c *Client) leave(wasError bool, message string) {
	if c.link == nil && c.session == nil && c.peer == nil && c.pending == nil {
		return
	}

	if c.keepAlive != nil {
		c.keepAlive.stop()
		c.keepAlive = nil
	}

	c.session = nil
	c.pending = nil

	if c.link != nil {
		c.link.Detach()
		if err := c.link.Close(); err != nil {
			util.LogDebug("closing rendezvous link: %v", err)
		}
		c.link = nil
	}
	c.linkOpen = false

	if c.peer != nil {
		peer := c.peer
		peer.Detach()
		c.peer = nil

		// Let the server notice the rendezvous disconnect before the peer
		// link disappears.
		if wasError {
			closePeer(peer)
		} else {
			c.after(c.cfg.LeaveGrace, func() { closePeer(peer) })
		}
	}

	c.tr.Reset()
	c.out.reset()
	c.out.setPorts(protocol.ReleasedPorts())

	if message == "" {
		message = msgSessionEnded
	}
	c.deps.Room.ShowMessage(message, true, wasError)
	if wasError {
		util.LogError("%s", message)
	} else {
		util.LogInfo("%s", message)
	}

	c.deps.Room.EnterStandaloneMode()
	c.publishStatus()
}

func closePeer(p Peer) {
	if err := p.Close(); err != nil {
		util.LogDebug("closing peer connection: %v", err)
	}
}
