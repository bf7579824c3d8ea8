package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide NetPlay traffic counter.
var Stats = &stats{}

type stats struct {
	Ticks       atomic.Int64 // host updates applied since process start
	UpdatesSent atomic.Int64 // client updates emitted since process start
	BytesSent   atomic.Int64 // bytes written to the peer channel or relay
	BytesRecv   atomic.Int64 // bytes read from the peer channel or relay
}

func (s *stats) AddTick()      { s.Ticks.Add(1) }
func (s *stats) AddUpdate()    { s.UpdatesSent.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportPeriod = 10 * time.Second

// StartStatsReporter launches a goroutine that logs NetPlay statistics
// every 10 seconds while ticks are flowing. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportPeriod)
		defer ticker.Stop()

		var prevSent, prevRecv, prevTicks int64
		for {
			select {
			case <-ticker.C:
				ticks := Stats.Ticks.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				secs := reportPeriod.Seconds()
				tickS := float64(ticks-prevTicks) / secs
				inS := float64(recv-prevRecv) / secs
				outS := float64(sent-prevSent) / secs

				if ticks > prevTicks {
					pterm.DefaultLogger.Info(formatStats(tickS, inS, outS))
				}

				prevSent = sent
				prevRecv = recv
				prevTicks = ticks

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(tickS, inS, outS float64) string {
	return fmt.Sprintf("Ticks: %5.1f/s | In: %s/s | Out: %s/s",
		tickS,
		formatBytes(inS),
		formatBytes(outS),
	)
}
