package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netplay/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rendezvousStub accepts one WebSocket client, hands every inbound frame to
// received and writes every frame from replies. Closing replies drops the
// client.
func rendezvousStub(t *testing.T) (url string, received <-chan string, replies chan<- string) {
	t.Helper()
	recvCh := make(chan string, 16)
	replyCh := make(chan string, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for reply := range replyCh {
				if conn.WriteMessage(websocket.TextMessage, []byte(reply)) != nil {
					return
				}
			}
			conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			recvCh <- string(data)
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), recvCh, replyCh
}

func TestConnExchangesEnvelopes(t *testing.T) {
	url, received, replies := rendezvousStub(t)

	opened := make(chan struct{})
	messages := make(chan protocol.Message, 4)
	closed := make(chan error, 1)

	c := Open(context.Background(), url, Handler{
		OnOpen:    func() { close(opened) },
		OnMessage: func(m protocol.Message) { messages <- m },
		OnClose:   func(err error) { closed <- err },
	})

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("link never opened")
	}

	require.NoError(t, c.Send(protocol.KeepAlive{}))
	select {
	case got := <-received:
		require.JSONEq(t, `{"sessionControl":"keep-alive"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("server never received keep-alive")
	}

	replies <- `{"garbage":true}`
	replies <- `{"sessionControl":"joinError","errorMessage":"nope"}`
	select {
	case m := <-messages:
		require.Equal(t, protocol.JoinError{ErrorMessage: "nope"}, m)
	case <-time.After(5 * time.Second):
		t.Fatal("client never received joinError")
	}

	c.Detach()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Send(protocol.KeepAlive{}), ErrNotOpen)

	select {
	case err := <-closed:
		t.Fatalf("detached link reported close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConnReportsDialFailure(t *testing.T) {
	closed := make(chan error, 1)
	c := Open(context.Background(), "ws://127.0.0.1:1/nothing", Handler{
		OnOpen:  func() { t.Error("unexpected open") },
		OnClose: func(err error) { closed <- err },
	})
	defer c.Close()

	select {
	case err := <-closed:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dial failure not reported")
	}
	require.ErrorIs(t, c.Send(protocol.KeepAlive{}), ErrNotOpen)
}

func TestConnReportsServerClose(t *testing.T) {
	url, _, replies := rendezvousStub(t)

	opened := make(chan struct{})
	closed := make(chan error, 1)
	c := Open(context.Background(), url, Handler{
		OnOpen:  func() { close(opened) },
		OnClose: func(err error) { closed <- err },
	})
	defer c.Close()

	<-opened
	close(replies)

	select {
	case err := <-closed:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connection loss not reported")
	}
}
