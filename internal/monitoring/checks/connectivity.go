package checks

import (
	"context"
	"time"

	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/monitoring"
)

// Connectivity reports whether the agent can currently reach the network.
// Offline is degraded rather than down; the agent keeps serving cached data.
func Connectivity(checker connectivity.Checker) monitoring.Check {
	return monitoring.NewCheck("connectivity", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if checker == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "connectivity checker unavailable",
				Duration: time.Since(start),
			}
		}

		if !checker.IsConnected(ctx) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "no internet connectivity",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
