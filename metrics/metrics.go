// Package metrics defines the instrumentation surface of the agentfund
// core: one counter per entry-point outcome and one latency histogram.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
