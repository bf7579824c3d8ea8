// Package app wires the NetPlay client to real transports and a headless
// console room.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netplay/internal/config"
	"github.com/1ureka/netplay/internal/netplay"
	"github.com/1ureka/netplay/internal/signaling"
	"github.com/1ureka/netplay/internal/transport"
	"github.com/1ureka/netplay/internal/util"
)

// RunClient orchestrates the full client lifecycle:
//  1. Build the client with headless collaborators
//  2. Queue the join request and start the event loop
//  3. Block until the session ends or ctx is cancelled
//  4. Leave gracefully and let the deferred peer close run
func RunClient(ctx context.Context, cfg config.Config, sessionID string) error {
	// Links and peers outlive ctx so that the client's own leave closes them.
	resCtx := context.WithoutCancel(ctx)

	dial := func(url string, h signaling.Handler) netplay.Link {
		return signaling.Open(resCtx, url, h)
	}
	newPeer := func(pcCfg webrtc.Configuration, h transport.PeerHandler) (netplay.Peer, error) {
		p, err := transport.NewPeer(resCtx, pcCfg, h)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	room := newConsoleRoom()
	client, err := netplay.New(cfg, netplay.Deps{
		Room:     room,
		Machine:  newMemMachine(),
		Keyboard: newMemKeyboard(),
		Hub:      idleHub{},
		Disk:     logDisk{},
	}, dial, newPeer)
	if err != nil {
		return err
	}

	if err := client.JoinSession(sessionID, cfg.Nick); err != nil {
		return fmt.Errorf("join %q: %w", sessionID, err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		client.Run(loopCtx)
		close(loopDone)
	}()

	util.StartStatsReporter(loopCtx)

	select {
	case <-room.Ended():
	case <-ctx.Done():
	}

	stopLoop()
	<-loopDone
	time.Sleep(cfg.LeaveGrace)

	if msg := room.LastError(); msg != "" {
		return errors.New(msg)
	}
	return nil
}
