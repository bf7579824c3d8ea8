package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netplay/internal/util"
)

// newPeerConnection is replaced in tests to allow loopback candidates.
var newPeerConnection = webrtc.NewPeerConnection

// ErrChannelNotOpen is returned when sending before the host's DataChannel
// has arrived.
var ErrChannelNotOpen = errors.New("data channel not open")

// PeerHandler receives the events of a Peer. Callbacks run on pion's
// goroutines and must not block.
type PeerHandler struct {
	OnLocalDescription func(webrtc.SessionDescription) // ICE gathering complete
	OnChannelOpen      func()
	OnChannelClose     func()
	OnChannelMessage   func(text string)
}

// Peer wraps the client side of a PeerConnection. The host creates the
// DataChannel; the client answers the host's offer and binds to the channel
// when it arrives.
//
// Detach silences every handler, so closing the Peer afterwards does not
// report its own close as a transport loss.
type Peer struct {
	pc      *webrtc.PeerConnection
	handler PeerHandler

	ctx    context.Context
	cancel context.CancelFunc

	detached atomic.Bool

	mu     sync.Mutex
	dc     *webrtc.DataChannel
	sender *sender
}

// NewPeer creates a PeerConnection with cfg and registers the gathering and
// DataChannel handlers. The Peer stays alive until Close or ctx cancellation.
func NewPeer(ctx context.Context, cfg webrtc.Configuration, h PeerHandler) (*Peer, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pCtx, pCancel := context.WithCancel(ctx)
	p := &Peer{pc: pc, handler: h, ctx: pCtx, cancel: pCancel}

	// A nil candidate signals the end of gathering; the local description
	// now holds every candidate.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil || p.detached.Load() {
			return
		}
		if desc := pc.LocalDescription(); desc != nil {
			h.OnLocalDescription(*desc)
		}
	})

	pc.OnDataChannel(p.bind)

	// Record PC state (informational only).
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	return p, nil
}

// bind attaches the lifecycle callbacks to the host's DataChannel.
func (p *Peer) bind(dc *webrtc.DataChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dc != nil {
		util.LogWarning("ignoring extra DataChannel %q", dc.Label())
		return
	}

	openSignal := make(chan struct{})
	p.dc = dc
	p.sender = newSender(p.ctx, p.cancel, dc, openSignal)

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(openSignal) })
		if !p.detached.Load() {
			p.handler.OnChannelOpen()
		}
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		p.cancel()
		if !p.detached.Load() {
			p.handler.OnChannelClose()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !p.detached.Load() {
			p.handler.OnChannelMessage(string(msg.Data))
		}
	})
}

// Answer applies the host's offer, creates the answer and applies it as the
// local description. Each step runs only if the previous one succeeded.
// Once the local description is set, ICE gathering starts and completion is
// reported through OnLocalDescription.
func (p *Peer) Answer(offer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return nil
}

// SendText enqueues a text frame on the DataChannel.
func (p *Peer) SendText(text string) error {
	p.mu.Lock()
	s := p.sender
	p.mu.Unlock()

	if s == nil {
		return ErrChannelNotOpen
	}
	return s.send(text)
}

// Detach stops every handler from firing. It is safe to call repeatedly.
func (p *Peer) Detach() {
	p.detached.Store(true)
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.cancel()

	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	var dcErr error
	if dc != nil {
		dcErr = dc.Close()
	}
	return errors.Join(dcErr, p.pc.Close())
}

// ---------------------------------------------------------------------------
// Host-provided configuration
// ---------------------------------------------------------------------------

// rtcConfig mirrors the browser RTCConfiguration dictionary sent by the host.
type rtcConfig struct {
	ICEServers         []iceServer `json:"iceServers"`
	ICETransportPolicy string      `json:"iceTransportPolicy"`
}

type iceServer struct {
	URLs       json.RawMessage `json:"urls"` // string or []string
	URL        string          `json:"url"`  // legacy single URL
	Username   string          `json:"username"`
	Credential string          `json:"credential"`
}

// ParseConfiguration converts the host's RTC_CONFIG JSON into a pion
// Configuration. An empty string yields the zero Configuration.
func ParseConfiguration(raw string) (webrtc.Configuration, error) {
	var cfg webrtc.Configuration
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	var rc rtcConfig
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return webrtc.Configuration{}, fmt.Errorf("parse RTC config: %w", err)
	}

	for i, s := range rc.ICEServers {
		urls, err := s.urls()
		if err != nil {
			return webrtc.Configuration{}, fmt.Errorf("parse RTC config: iceServers[%d]: %w", i, err)
		}
		server := webrtc.ICEServer{URLs: urls, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, server)
	}

	if rc.ICETransportPolicy != "" {
		cfg.ICETransportPolicy = webrtc.NewICETransportPolicy(rc.ICETransportPolicy)
	}
	return cfg, nil
}

func (s iceServer) urls() ([]string, error) {
	if len(s.URLs) == 0 || string(s.URLs) == "null" {
		if s.URL == "" {
			return nil, errors.New("missing urls")
		}
		return []string{s.URL}, nil
	}

	var one string
	if err := json.Unmarshal(s.URLs, &one); err == nil {
		return []string{one}, nil
	}

	var many []string
	if err := json.Unmarshal(s.URLs, &many); err != nil {
		return nil, fmt.Errorf("urls: %w", err)
	}
	return many, nil
}
