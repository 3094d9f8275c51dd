// Package calibrate implements the statistical zero-calibration
// ("tare") of the converter channels and the application of the
// resulting offsets to raw samples.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientSamples is returned when a tare is requested with
	// fewer samples than the statistics need to be meaningful.
	ErrInsufficientSamples = errors.New("not enough samples for tare")

	// ErrExcessiveDeviation is returned when outlier rejection discards
	// more than the tolerated fraction of samples across all channels.
	ErrExcessiveDeviation = errors.New("excessive deviations measured")
)

const (
	minTareSamples = 100

	// minRetainedFraction is the fraction of samples, aggregated over
	// all channels, that must survive outlier rejection for a tare to
	// be accepted.
	minRetainedFraction = 0.8
)

// Engine is the part of the acquisition device the calibration layer
// drives. *hx711.Device satisfies it.
type Engine interface {
	NumChannels() int
	WaitReady(ctx context.Context) error
	ReadRaw() ([]int32, error)
	Read() ([]int32, error)
}

// Set holds one offset per channel. It is replaced wholesale by a
// successful tare and never partially; a failed tare leaves the
// previous offsets (or the all-zero default) untouched.
type Set struct {
	mu         sync.RWMutex
	offsets    []float64
	calibrated bool
}

// NewSet returns an all-zero offset set for the given channel count.
func NewSet(numChannels int) *Set {
	return &Set{offsets: make([]float64, numChannels)}
}

// Offsets returns a copy of the current per-channel offsets.
func (s *Set) Offsets() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.offsets...)
}

// Calibrated reports whether a tare has succeeded since construction.
func (s *Set) Calibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calibrated
}

func (s *Set) replace(offsets []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.offsets, offsets)
	s.calibrated = true
}

// Calibrator runs repeated acquisitions and fixes the offset set from
// the retained samples.
type Calibrator struct {
	engine Engine
	set    *Set
}

func NewCalibrator(engine Engine, set *Set) *Calibrator {
	return &Calibrator{engine: engine, set: set}
}

// Tare collects sampleCount vectors, rejects outliers per channel and
// replaces the offset set with the per-channel means of the retained
// samples. maxDeviationFactor is the multiple of a channel's standard
// deviation beyond which a sample counts as an outlier. The tare fails
// without touching the offsets if fewer than 80% of all samples,
// aggregated across channels, survive rejection.
//
// The collection loop waits for converter readiness before every
// capture; the passed context bounds that wait.
func (c *Calibrator) Tare(ctx context.Context, sampleCount int, maxDeviationFactor float64) error {
	if sampleCount < minTareSamples {
		return fmt.Errorf("%w: need at least %d, got %d", ErrInsufficientSamples, minTareSamples, sampleCount)
	}
	if maxDeviationFactor < 0 {
		return errors.New("maxDeviationFactor must not be negative")
	}

	numChannels := c.engine.NumChannels()
	samples := make([][]float64, numChannels)
	for ch := range samples {
		samples[ch] = make([]float64, 0, sampleCount)
	}

	for collected := 0; collected < sampleCount; collected++ {
		if err := c.engine.WaitReady(ctx); err != nil {
			return fmt.Errorf("waiting for converters: %w", err)
		}
		vec, err := c.engine.ReadRaw()
		if err != nil {
			return err
		}
		for ch, v := range vec {
			samples[ch] = append(samples[ch], float64(v))
		}
	}

	// Outlier rejection happens per channel: channels may retain
	// different counts and different sample indices.
	offsets := make([]float64, numChannels)
	totalRetained := 0
	for ch, data := range samples {
		mean := stat.Mean(data, nil)
		stddev := stat.StdDev(data, nil)
		limit := maxDeviationFactor * stddev

		retained := make([]float64, 0, len(data))
		for _, v := range data {
			if math.Abs(v-mean) <= limit {
				retained = append(retained, v)
			}
		}
		totalRetained += len(retained)
		if len(retained) > 0 {
			offsets[ch] = stat.Mean(retained, nil)
		}
		slog.Debug("Channel tare statistics",
			"channel", ch, "mean", mean, "stddev", stddev,
			"retained", len(retained), "collected", len(data))
	}

	total := numChannels * sampleCount
	if float64(totalRetained) < minRetainedFraction*float64(total) {
		return fmt.Errorf("%w: retained %d of %d samples", ErrExcessiveDeviation, totalRetained, total)
	}

	c.set.replace(offsets)
	slog.Info("Tare complete", "offsets", offsets)
	return nil
}
