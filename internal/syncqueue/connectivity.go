package syncqueue

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Connectivity answers "are we online" for the drain loop. A locally-set
// offline flag short-circuits; otherwise a lightweight probe against a
// known-reachable endpoint decides, with a bounded timeout treating slow
// networks as unreachable. All callers share this one policy.
type Connectivity struct {
	offline  atomic.Bool
	probeURL string
	client   *http.Client
}

// NewConnectivity builds the shared connectivity capability.
func NewConnectivity(probeURL string, timeout time.Duration) *Connectivity {
	return &Connectivity{
		probeURL: probeURL,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetOffline forces the offline fast path on or off.
func (c *Connectivity) SetOffline(offline bool) {
	c.offline.Store(offline)
}

// Offline reports the local flag without probing.
func (c *Connectivity) Offline() bool {
	return c.offline.Load()
}

// Check reports reachability. The local flag wins; otherwise the probe
// decides. Any probe failure, including timeout, means unreachable.
func (c *Connectivity) Check(ctx context.Context) bool {
	if c.offline.Load() {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
