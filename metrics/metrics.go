package metrics

import "time"

// Recorder receives verification and settlement telemetry.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
