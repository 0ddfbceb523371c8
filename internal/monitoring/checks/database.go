package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/database"
	"github.com/cooktodor/notifier/internal/monitoring"
)

// Database returns a readiness probe that pings the notification store.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		return monitoring.ResultFromError(database.Ping(ctx, db), time.Since(start))
	})
}
