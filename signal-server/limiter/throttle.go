package limiter

import (
	"github.com/beamgate/beamgate/shared/params"
	"github.com/kevinms/leakybucket-go"
)

// SocketThrottle bounds the rate of inbound events processed per connected
// endpoint so a single socket cannot monopolize the event loop. It is a
// leaky bucket: short bursts up to the capacity pass, sustained traffic is
// held to the refill rate.
type SocketThrottle struct {
	collector *leakybucket.Collector
}

// NewSocketThrottle builds a throttle from the configured per-socket rate
// and burst capacity. Drained buckets delete themselves, so disconnected
// endpoints leave no state behind.
func NewSocketThrottle() *SocketThrottle {
	cfg := params.Config()
	return &SocketThrottle{
		collector: leakybucket.NewCollector(float64(cfg.SocketEventRate), cfg.SocketEventCapacity, true /* deleteEmptyBuckets */),
	}
}

// Allow records one inbound event for the endpoint and reports whether it
// fits the bucket.
func (t *SocketThrottle) Allow(endpointID string) bool {
	return t.collector.Add(endpointID, 1) > 0
}

// Free releases the underlying collector and its drain timer.
func (t *SocketThrottle) Free() {
	t.collector.Free()
}
