package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netplay/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing frame channel capacity
)

// ErrSendQueueFull is returned when the DataChannel cannot keep up with the
// frames handed to it.
var ErrSendQueueFull = errors.New("data channel send queue full")

// frameWriter is the part of a DataChannel the sender writes through.
type frameWriter interface {
	SendText(text string) error
	BufferedAmount() uint64
}

// sender is a goroutine-based frame writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control. Frames of a
// fragmented message are enqueued back to back, so they leave in order.
//
// The first write error is sticky: the sender cancels its context and every
// later send returns that error.
type sender struct {
	ctx    context.Context
	cancel context.CancelFunc

	inbox       chan string
	drainSignal chan struct{}

	failOnce sync.Once
	failErr  error
	failed   chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled; cancel
// is called on the first write failure.
func newSender(ctx context.Context, cancel context.CancelFunc, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := startSender(ctx, cancel, dc, openSignal)

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(s.signalDrain)

	return s
}

func startSender(ctx context.Context, cancel context.CancelFunc, w frameWriter, openSignal <-chan struct{}) *sender {
	s := &sender{
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan string, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
		failed:      make(chan struct{}),
	}

	go s.loop(w, openSignal)

	return s
}

func (s *sender) signalDrain() {
	select {
	case s.drainSignal <- struct{}{}:
	default:
	}
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(w frameWriter, openSignal <-chan struct{}) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-s.ctx.Done():
		return
	}

	// Phase 2: send frames with backpressure.
	for {
		select {
		case frame := <-s.inbox:
			if w.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-s.ctx.Done():
					return
				}
			}

			if err := w.SendText(frame); err != nil {
				util.LogError("failed to send frame (%d bytes): %v", len(frame), err)
				s.fail(fmt.Errorf("send frame: %w", err))
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *sender) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
		s.cancel()
	})
}

// err returns the sticky write error, if any.
func (s *sender) err() error {
	select {
	case <-s.failed:
		return s.failErr
	default:
		return nil
	}
}

// send enqueues a frame for transmission without blocking. It fails with the
// sticky write error, with ctx's error once the peer is shut down, or with
// ErrSendQueueFull when the inbox is full.
func (s *sender) send(frame string) error {
	if err := s.err(); err != nil {
		return err
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.inbox <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}
