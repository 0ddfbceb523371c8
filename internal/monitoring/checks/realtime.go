package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/cooktodor/notifier/internal/monitoring"
)

// StreamCounter reports how many delivery streams are open.
type StreamCounter interface {
	ActiveCount() int
}

// HeartbeatReporter exposes the heartbeat scheduler's progress.
type HeartbeatReporter interface {
	Interval() time.Duration
	LastRun() time.Time
}

// Streams reports the number of open streams. It never fails on its own;
// it exists so the count shows up next to the other probes.
func Streams(counter StreamCounter) monitoring.Check {
	return monitoring.NewCheck("streams", func(context.Context) monitoring.ProbeResult {
		if counter == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "registry unavailable"}
		}
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d active", counter.ActiveCount()),
		}
	})
}

// Heartbeat degrades once probes have stopped for longer than missed
// intervals. Before the first round it only checks the process has not been
// up longer than that window.
func Heartbeat(reporter HeartbeatReporter, missed int, now func() time.Time) monitoring.Check {
	if missed <= 0 {
		missed = 3
	}
	if now == nil {
		now = time.Now
	}
	started := now()

	return monitoring.NewCheck("heartbeat", func(context.Context) monitoring.ProbeResult {
		if reporter == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "heartbeat not running"}
		}

		window := time.Duration(missed) * reporter.Interval()
		last := reporter.LastRun()
		if last.IsZero() {
			if now().Sub(started) > window {
				return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "no heartbeat round has run"}
			}
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "pending first run"}
		}
		if age := now().Sub(last); age > window {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: "last round " + last.UTC().Format(time.RFC3339),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}
