// Package transport carries NetUpdates between the client and the host over
// either a WebRTC DataChannel (peer) or the rendezvous link (relay), behind a
// single send/receive surface.
package transport

import (
	"errors"
	"fmt"

	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/util"
)

// Mode identifies the channel currently carrying updates.
type Mode int

const (
	ModeNone Mode = iota
	ModeRelay
	ModePeer
)

func (m Mode) String() string {
	switch m {
	case ModeRelay:
		return "relay"
	case ModePeer:
		return "peer"
	default:
		return "none"
	}
}

// ErrNoRoute is returned by SendUpdate when no channel has been selected.
var ErrNoRoute = errors.New("no transport selected")

// Relay sends envelopes over the rendezvous link.
type Relay interface {
	Send(protocol.Message) error
}

// Channel sends text frames over an open peer DataChannel.
type Channel interface {
	SendText(text string) error
}

// Transport selects between the relay and the peer channel. It is owned by
// the client's event loop and needs no locking.
//
// The mode only moves forward within a session: None → Relay → Peer, or
// None → Peer. Reset returns it to None when the session ends.
type Transport struct {
	mode     Mode
	relay    Relay
	peer     Channel
	frames   protocol.Reassembler
	fragSize int
}

// New creates an idle Transport that fragments peer frames above fragSize.
func New(fragSize int) *Transport {
	return &Transport{fragSize: fragSize}
}

// Mode returns the active mode.
func (t *Transport) Mode() Mode {
	return t.mode
}

// IsPeerActive reports whether updates flow over the peer channel.
func (t *Transport) IsPeerActive() bool {
	return t.mode == ModePeer
}

// UseRelay routes updates through the rendezvous link. It is ignored once the
// peer channel is active; a peer session never falls back to relay.
func (t *Transport) UseRelay(r Relay) {
	if t.mode == ModePeer {
		util.LogDebug("ignoring relay selection: peer channel already active")
		return
	}
	t.relay = r
	t.mode = ModeRelay
}

// UsePeer routes updates over an open DataChannel.
func (t *Transport) UsePeer(c Channel) {
	t.peer = c
	t.mode = ModePeer
	t.frames.Reset()
}

// Reset drops both channels and any partial inbound message.
func (t *Transport) Reset() {
	t.mode = ModeNone
	t.relay = nil
	t.peer = nil
	t.frames.Reset()
}

// SendUpdate serializes u and writes it on the active channel, fragmenting
// it when it exceeds the frame size of the peer channel.
func (t *Transport) SendUpdate(u protocol.Update) error {
	text, err := protocol.EncodeUpdate(u)
	if err != nil {
		return err
	}

	switch t.mode {
	case ModePeer:
		for _, frame := range protocol.Fragment(text, t.fragSize) {
			if err := t.peer.SendText(frame); err != nil {
				return fmt.Errorf("send peer frame: %w", err)
			}
		}
	case ModeRelay:
		if err := t.relay.Send(protocol.RelayUpdate{Update: text}); err != nil {
			return fmt.Errorf("send relayed update: %w", err)
		}
	default:
		return ErrNoRoute
	}

	util.Stats.AddUpdate()
	util.Stats.AddSent(len(text))
	return nil
}

// ReceiveFrame feeds one DataChannel frame through the reassembler. It
// returns the decoded update and true once a complete message is available.
func (t *Transport) ReceiveFrame(frame string) (protocol.Update, bool, error) {
	util.Stats.AddRecv(len(frame))

	text, ok := t.frames.Feed(frame)
	if !ok {
		return nil, false, nil
	}

	u, err := protocol.DecodeUpdate([]byte(text))
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// ReceiveRelay unwraps an update relayed through the rendezvous service.
func (t *Transport) ReceiveRelay(m protocol.RelayUpdate) (protocol.Update, error) {
	util.Stats.AddRecv(len(m.Update))
	return protocol.DecodeUpdate([]byte(m.Update))
}
