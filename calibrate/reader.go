package calibrate

import (
	"context"
)

// Reader produces calibrated readings by subtracting the current
// offset set from raw samples. Before the first successful tare all
// offsets are zero, so calibrated readings equal raw readings.
type Reader struct {
	engine Engine
	set    *Set
}

func NewReader(engine Engine, set *Set) *Reader {
	return &Reader{engine: engine, set: set}
}

// Read captures one raw vector and applies the offsets. It fails with
// the engine's not-ready error instead of proceeding with undefined
// bits when readiness is false.
func (r *Reader) Read() ([]float64, error) {
	raw, err := r.engine.Read()
	if err != nil {
		return nil, err
	}
	return r.apply(raw), nil
}

// WaitRead blocks until the converters are ready, bounded by the
// context, and returns both the raw and the calibrated vector.
func (r *Reader) WaitRead(ctx context.Context) ([]int32, []float64, error) {
	if err := r.engine.WaitReady(ctx); err != nil {
		return nil, nil, err
	}
	raw, err := r.engine.ReadRaw()
	if err != nil {
		return nil, nil, err
	}
	return raw, r.apply(raw), nil
}

func (r *Reader) apply(raw []int32) []float64 {
	offsets := r.set.Offsets()
	out := make([]float64, len(raw))
	for ch, v := range raw {
		out[ch] = float64(v) - offsets[ch]
	}
	return out
}
