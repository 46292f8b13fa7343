package metric

import (
	"strconv"
	"time"
)

const (
	APIRequestCount   = "api_request_count"
	APIRequestLatency = "api_request_latency"

	PoolObjectCreated       = "pool_object_created"
	PoolObjectCreateFailed  = "pool_object_create_failed"
	PoolObjectDestroyed     = "pool_object_destroyed"
	PoolAcquireCount        = "pool_acquire_count"
	PoolAcquireTimeout      = "pool_acquire_timeout"
	PoolAcquireLatency      = "pool_acquire_latency"
	PoolAvailableGauge      = "pool_available"
	PoolInUseGauge          = "pool_in_use"
	PoolHousekeepingLatency = "pool_housekeeping_latency"

	EgressEndpointPicked   = "egress_endpoint_picked"
	EgressEndpointBanned   = "egress_endpoint_banned"
	EgressEndpointExhaust  = "egress_endpoint_exhausted"
	EgressReplenishCount   = "egress_replenish_count"
	EgressReplenishLatency = "egress_replenish_latency"
)

func ObserveAPIRequest(path, method string, statusCode int, latency time.Duration) {
	tags := BuildTag(
		NewTag(TagPath, path),
		NewTag(TagMethod, method),
		NewTag(TagHttpStatusCode, strconv.Itoa(statusCode)),
	)

	Incr(APIRequestCount, tags)
	Timing(APIRequestLatency, latency, tags)
}

// ObservePoolSizes reports the point-in-time pool occupancy, called once per
// housekeeping round.
func ObservePoolSizes(pool string, available, inUse int) {
	tags := BuildTag(NewTag(TagPool, pool))
	Gauge(PoolAvailableGauge, float64(available), tags)
	Gauge(PoolInUseGauge, float64(inUse), tags)
}

func ObservePoolDestroy(pool, reason string, count int64) {
	if count == 0 {
		return
	}
	Count(PoolObjectDestroyed, count, BuildTag(
		NewTag(TagPool, pool),
		NewTag(TagReason, reason),
	))
}
