package metrics

import "time"

// Metric names emitted by tiermint components.
const (
	MintTransitions = "mint_transition"
	MintLatency     = "mint_confirmation"
	CacheFetches    = "cache_fetch"
	CacheDiscarded  = "cache_discarded"
	DecodeFailures  = "metadata_decode_failure"
	TotalSupply     = "total_supply"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
