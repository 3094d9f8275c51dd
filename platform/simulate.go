package platform

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedPort models the converter front-ends without hardware. Each
// data pin behaves like a real converter: it reads high until a
// conversion is available, goes low when ready, and shifts out a
// 24-bit two's-complement word MSB-first on consecutive rising clock
// edges. After the 24th data bit the simulated converters drop back to
// not-ready and re-assert readiness after the conversion period.
//
// Sample values come from an optional queue of per-channel vectors
// (Enqueue) and otherwise from the configured source function.
type SimulatedPort struct {
	mu       sync.Mutex
	clockPin int
	chanIdx  map[int]int
	dirs     map[int]Direction

	clock    Level
	bitIndex int
	current  []int32
	latched  bool

	period    time.Duration
	nextReady time.Time

	queue  [][]int32
	source func(channel int) int32
}

// NewSimulatedPort creates a simulated port for the given wiring. The
// default conversion period keeps tests fast while still forcing a
// not-ready gap between conversions.
func NewSimulatedPort(clockPin int, dataPins []int) *SimulatedPort {
	chanIdx := make(map[int]int, len(dataPins))
	for i, pin := range dataPins {
		chanIdx[pin] = i
	}
	return &SimulatedPort{
		clockPin: clockPin,
		chanIdx:  chanIdx,
		dirs:     make(map[int]Direction),
		current:  make([]int32, len(dataPins)),
		period:   100 * time.Microsecond,
		source:   func(int) int32 { return 0 },
	}
}

// SetConversionPeriod changes how long the simulated converters stay
// not-ready after a completed read.
func (s *SimulatedPort) SetConversionPeriod(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = d
}

// SetSource installs the function producing sample values when the
// queue is empty.
func (s *SimulatedPort) SetSource(f func(channel int) int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = f
}

// Enqueue adds per-channel sample vectors that will be shifted out in
// order, one vector per conversion, before the source is consulted.
func (s *SimulatedPort) Enqueue(vectors ...[]int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, vectors...)
}

// NoiseSource returns a source producing values uniformly distributed
// in [base-spread, base+spread].
func NoiseSource(base, spread int32) func(int) int32 {
	return func(int) int32 {
		return base - spread + rand.Int31n(2*spread+1)
	}
}

func (s *SimulatedPort) SetDirection(pin int, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chanIdx[pin]; !ok && pin != s.clockPin {
		return fmt.Errorf("pin %d is not wired", pin)
	}
	s.dirs[pin] = dir
	return nil
}

func (s *SimulatedPort) Write(pin int, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir, ok := s.dirs[pin]; !ok || dir != Output {
		return fmt.Errorf("write to pin %d which is not configured as output", pin)
	}
	if pin != s.clockPin {
		return fmt.Errorf("write to data pin %d", pin)
	}
	if level == High && s.clock == Low {
		s.risingEdge()
	}
	s.clock = level
	return nil
}

func (s *SimulatedPort) Read(pin int) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir, ok := s.dirs[pin]; !ok || dir != Input {
		return Low, fmt.Errorf("read of pin %d which is not configured as input", pin)
	}
	ch, ok := s.chanIdx[pin]
	if !ok {
		return Low, fmt.Errorf("read of pin %d which is not a data pin", pin)
	}
	if s.latched && s.bitIndex >= 1 && s.bitIndex <= 24 {
		bit := (uint32(s.current[ch]) >> (24 - s.bitIndex)) & 1
		return bit == 1, nil
	}
	if s.ready() {
		return Low, nil
	}
	return High, nil
}

func (s *SimulatedPort) Close() error {
	return nil
}

// ready must be called with the mutex held.
func (s *SimulatedPort) ready() bool {
	return !s.latched && !time.Now().Before(s.nextReady)
}

// risingEdge must be called with the mutex held.
func (s *SimulatedPort) risingEdge() {
	if !s.latched {
		if !s.ready() {
			// Clocking a converter that has no conversion pending
			// yields no defined bits; the data lines stay high.
			return
		}
		s.latch()
		s.bitIndex = 1
		return
	}
	s.bitIndex++
	if s.bitIndex > 24 {
		// Data word fully shifted out; the remaining pulses of the
		// cycle only program the gain for the next conversion.
		s.latched = false
		s.nextReady = time.Now().Add(s.period)
	}
}

// latch must be called with the mutex held.
func (s *SimulatedPort) latch() {
	if len(s.queue) > 0 {
		copy(s.current, s.queue[0])
		s.queue = s.queue[1:]
	} else {
		for ch := range s.current {
			s.current[ch] = s.source(ch)
		}
	}
	s.latched = true
}
