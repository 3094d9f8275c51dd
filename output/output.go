// Package output defines the sinks calibrated readings are delivered
// to. The acquisition loop publishes every reading to all configured
// outputs; a failing sink must not stall acquisition, so Publish
// errors are reported to the caller and the loop decides what to log.
package output

import "time"

// Reading is one calibrated acquisition: the raw sample vector plus
// the offset-corrected values, both in channel order.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       []int32   `json:"raw"`
	Values    []float64 `json:"values"`
}

type Output interface {
	Publish(Reading) error
	Close() error
}
