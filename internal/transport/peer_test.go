package transport

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// loopbackAPI gathers loopback candidates so two peers in one process can
// connect without any other interface.
func loopbackAPI() *webrtc.API {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

type peerEvents struct {
	desc   chan webrtc.SessionDescription
	open   chan struct{}
	closed chan struct{}
	text   chan string
}

func newPeerEvents() *peerEvents {
	return &peerEvents{
		desc:   make(chan webrtc.SessionDescription, 1),
		open:   make(chan struct{}, 1),
		closed: make(chan struct{}, 1),
		text:   make(chan string, 16),
	}
}

func (e *peerEvents) handler() PeerHandler {
	return PeerHandler{
		OnLocalDescription: func(d webrtc.SessionDescription) { e.desc <- d },
		OnChannelOpen: func() {
			select {
			case e.open <- struct{}{}:
			default:
			}
		},
		OnChannelClose: func() {
			select {
			case e.closed <- struct{}{}:
			default:
			}
		},
		OnChannelMessage: func(text string) { e.text <- text },
	}
}

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// connectLoopback plays the host against a Peer: it offers a DataChannel,
// applies the Peer's answer and waits for the channel to open on both ends.
func connectLoopback(t *testing.T) (*Peer, *peerEvents, *webrtc.DataChannel) {
	t.Helper()
	if testing.Short() {
		t.Skip("opens real peer connections")
	}

	api := loopbackAPI()
	prev := newPeerConnection
	newPeerConnection = api.NewPeerConnection
	t.Cleanup(func() { newPeerConnection = prev })

	host, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	hostDC, err := host.CreateDataChannel("netplay", nil)
	require.NoError(t, err)
	hostOpen := make(chan struct{})
	hostDC.OnOpen(func() { close(hostOpen) })

	offer, err := host.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(host)
	require.NoError(t, host.SetLocalDescription(offer))
	<-gathered

	ev := newPeerEvents()
	p, err := NewPeer(context.Background(), webrtc.Configuration{}, ev.handler())
	require.NoError(t, err)

	require.NoError(t, p.Answer(*host.LocalDescription()))
	answer := wait(t, ev.desc, "local description")
	require.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	require.NoError(t, host.SetRemoteDescription(answer))

	wait(t, ev.open, "client channel open")
	wait(t, hostOpen, "host channel open")
	return p, ev, hostDC
}

func TestPeerExchangesText(t *testing.T) {
	p, ev, hostDC := connectLoopback(t)
	defer p.Close()

	got := make(chan string, 1)
	hostDC.OnMessage(func(msg webrtc.DataChannelMessage) { got <- string(msg.Data) })

	require.NoError(t, hostDC.SendText(`{"s":{}}`))
	require.Equal(t, `{"s":{}}`, wait(t, ev.text, "client message"))

	require.NoError(t, p.SendText(`{}`))
	require.Equal(t, `{}`, wait(t, got, "host message"))
}

func TestPeerCloseReportsChannelClose(t *testing.T) {
	p, ev, _ := connectLoopback(t)

	_ = p.Close()
	wait(t, ev.closed, "channel close")
}

func TestPeerDetachSilencesClose(t *testing.T) {
	p, ev, _ := connectLoopback(t)

	p.Detach()
	_ = p.Close()

	select {
	case <-ev.closed:
		t.Fatal("detached peer reported its own close")
	case <-time.After(time.Second):
	}
	require.ErrorIs(t, p.SendText("late"), context.Canceled)
}
