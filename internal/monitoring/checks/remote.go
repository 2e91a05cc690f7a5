package checks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charlesng35/feedsync/internal/monitoring"
)

const defaultRemoteTimeout = 3 * time.Second

// Remote returns a readiness probe that issues a HEAD request against the
// remote API base URL. Any HTTP response counts as reachable except a 5xx,
// which reports the remote as degraded.
func Remote(client *http.Client, baseURL string, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("remote_api", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if baseURL == "" {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "remote base URL not configured",
				Duration: time.Since(start),
			}
		}
		if client == nil {
			client = http.DefaultClient
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultRemoteTimeout))
		defer cancel()

		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, baseURL, nil)
		if err != nil {
			return monitoring.ResultFromError("remote_api", err, time.Since(start))
		}

		resp, err := client.Do(req)
		if err != nil {
			return monitoring.ResultFromError("remote_api", err, time.Since(start))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("remote returned status %d", resp.StatusCode),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
