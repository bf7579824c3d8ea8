// Package signaling implements the WebSocket link to the NetPlay rendezvous
// service. The link carries the join handshake, SDP exchange, keep-alives and
// relayed updates as JSON envelopes.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/util"
)

// ErrNotOpen is returned by Send before the link is connected or after it
// has been closed.
var ErrNotOpen = errors.New("rendezvous link not open")

// Handler receives the events of a Conn. Callbacks run on the Conn's reader
// goroutine and must not block.
type Handler struct {
	OnOpen    func()
	OnMessage func(protocol.Message)
	OnClose   func(error) // dial failure or read error
}

// Conn is a rendezvous link. Open returns immediately; the dial and the read
// loop run in the background and report through the Handler.
//
// Detach silences the Handler, so that Close triggered by the owner is never
// reported back as a connection loss.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // guards handler and ws; serializes writes
	handler *Handler
	ws      *websocket.Conn
	closed  bool
}

// Open starts connecting to url and returns the Conn at once.
func Open(ctx context.Context, url string, h Handler) *Conn {
	cCtx, cCancel := context.WithCancel(ctx)
	c := &Conn{ctx: cCtx, cancel: cCancel, handler: &h}
	go c.run(url)
	return c
}

func (c *Conn) run(url string) {
	ws, err := connect(c.ctx, url)
	if err != nil {
		c.fireClose(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	util.LogDebug("rendezvous link connected: %s", url)
	if h := c.current(); h != nil && h.OnOpen != nil {
		h.OnOpen()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.fireClose(fmt.Errorf("read rendezvous message: %w", err))
			return
		}

		msg, err := protocol.UnmarshalMessage(data)
		if err != nil {
			util.LogDebug("dropping rendezvous message: %v", err)
			continue
		}

		if h := c.current(); h != nil && h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (c *Conn) current() *Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Conn) fireClose(err error) {
	if h := c.current(); h != nil && h.OnClose != nil {
		h.OnClose(err)
	}
}

// Send writes one envelope, guarded by the write mutex.
func (c *Conn) Send(m protocol.Message) error {
	data, err := protocol.MarshalMessage(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil || c.closed {
		return ErrNotOpen
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Detach stops every handler from firing. It is safe to call repeatedly.
func (c *Conn) Detach() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
}

// Close aborts a pending dial or closes the open WebSocket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	if c.ws == nil {
		return nil
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}

// connect dials the given WebSocket URL and returns the connection (private).
func connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rendezvous server: %w", err)
	}
	return conn, nil
}
