package checks

import (
	"context"
	"time"

	"github.com/cooktodor/notifier/internal/monitoring"
)

// RetentionReporter exposes the outcome of the retention job.
type RetentionReporter interface {
	Enabled() bool
	LastRun() (time.Time, error)
}

// Retention degrades while the most recent retention run has failed.
func Retention(reporter RetentionReporter) monitoring.Check {
	return monitoring.NewCheck("retention", func(context.Context) monitoring.ProbeResult {
		if reporter == nil || !reporter.Enabled() {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "disabled"}
		}

		last, err := reporter.LastRun()
		switch {
		case err != nil:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: err.Error()}
		case last.IsZero():
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "pending first run"}
		default:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "last run " + last.UTC().Format(time.RFC3339)}
		}
	})
}
