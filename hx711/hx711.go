// Package hx711 implements the synchronized bit-bang acquisition
// protocol for multiple HX711 converters sharing a single clock line
// while exposing independent data lines. One protocol cycle shifts a
// 24-bit two's-complement word out of every converter simultaneously
// and then programs the gain for the next conversion with extra clock
// pulses.
package hx711

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strainrig/gauged/config"
	"github.com/strainrig/gauged/platform"
)

var (
	// ErrInvalidGain is returned by New for gain values the converter
	// does not support on channel A.
	ErrInvalidGain = errors.New("unsupported gain")

	// ErrNotReady is returned by Read when not every converter has a
	// conversion pending.
	ErrNotReady = errors.New("converters not ready")
)

const numBits = 24

// gainPulses maps the channel A gain setting to the number of clock
// pulses issued after the data bits. Per the data sheet a cycle of 25
// total pulses selects gain 128 and 27 selects gain 64 for the next
// conversion.
var gainPulses = map[int]int{
	128: 1,
	64:  3,
}

// Device drives N converters over a shared clock line. All methods
// that touch the clock line hold an internal mutex: toggling the
// shared line from two goroutines at once would corrupt the bits of
// every channel, so acquisition is strictly single-flight.
type Device struct {
	mu           sync.Mutex
	port         platform.Port
	clockPin     int
	dataPins     []int
	gain         int
	extraPulses  int
	pollInterval time.Duration
	debug        bool
}

// New configures the pins, validates the gain setting and drives the
// clock line low once, which is the converter's documented power-on
// condition.
func New(port platform.Port, conf config.HardwareConfig) (*Device, error) {
	extra, ok := gainPulses[conf.Gain]
	if !ok {
		return nil, fmt.Errorf("%w: %d (must be 128 or 64)", ErrInvalidGain, conf.Gain)
	}
	if len(conf.DataPins) == 0 {
		return nil, errors.New("no data pins configured")
	}

	pollInterval := conf.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}

	d := &Device{
		port:         port,
		clockPin:     conf.ClockPin,
		dataPins:     append([]int(nil), conf.DataPins...),
		gain:         conf.Gain,
		extraPulses:  extra,
		pollInterval: pollInterval,
		debug:        conf.Debug,
	}

	if err := port.SetDirection(d.clockPin, platform.Output); err != nil {
		return nil, fmt.Errorf("configure clock pin %d: %w", d.clockPin, err)
	}
	for _, pin := range d.dataPins {
		if err := port.SetDirection(pin, platform.Input); err != nil {
			return nil, fmt.Errorf("configure data pin %d: %w", pin, err)
		}
	}
	if err := port.Write(d.clockPin, platform.Low); err != nil {
		return nil, fmt.Errorf("power up: %w", err)
	}

	slog.Info("Converter front-ends initialised", "channels", len(d.dataPins), "gain", d.gain)
	return d, nil
}

// NumChannels returns the number of converters on the clock line.
func (d *Device) NumChannels() int {
	return len(d.dataPins)
}

// Gain returns the configured channel A gain.
func (d *Device) Gain() int {
	return d.gain
}

// IsReady reports whether every converter has a conversion pending. A
// converter signals readiness by pulling its data line low; the shared
// timing window means all channels must be ready simultaneously before
// a read may start.
func (d *Device) IsReady() bool {
	for _, pin := range d.dataPins {
		level, err := d.port.Read(pin)
		if err != nil || level == platform.High {
			return false
		}
	}
	return true
}

// NotReadyChannels returns the indices of channels whose data line
// currently reads high. Purely observational, used for diagnostics; it
// has no influence on IsReady.
func (d *Device) NotReadyChannels() []int {
	var out []int
	for i, pin := range d.dataPins {
		if level, err := d.port.Read(pin); err != nil || level == platform.High {
			out = append(out, i)
		}
	}
	return out
}

// WaitReady polls IsReady at the configured interval until every
// converter is ready or the context ends. Callers wanting the bounded
// wait the hardware loop itself does not provide pass a context with a
// deadline; a background context waits indefinitely.
func (d *Device) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		if d.IsReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Read captures one sample vector, failing with ErrNotReady when not
// every converter is ready instead of shifting out undefined bits.
func (d *Device) Read() ([]int32, error) {
	if !d.IsReady() {
		if d.debug {
			slog.Debug("Read attempted while not ready", "channels", d.NotReadyChannels())
		}
		return nil, ErrNotReady
	}
	return d.ReadRaw()
}

// ReadRaw executes one protocol cycle: 24 clock pulses during which
// every channel's accumulator is shifted left and ORed with its data
// line (the first pulse yields the most significant bit), followed by
// the gain pulses for the next conversion. Caller contract: IsReady
// returned true immediately before the call; ReadRaw itself does not
// re-check.
func (d *Device) ReadRaw() ([]int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc := make([]uint32, len(d.dataPins))
	for bit := 0; bit < numBits; bit++ {
		if err := d.pulse(); err != nil {
			return nil, err
		}
		for i, pin := range d.dataPins {
			level, err := d.port.Read(pin)
			if err != nil {
				return nil, fmt.Errorf("read data pin %d: %w", pin, err)
			}
			acc[i] <<= 1
			if level == platform.High {
				acc[i] |= 1
			}
		}
	}

	// The gain for the next conversion is programmed by the number of
	// additional pulses. No data is sampled during these.
	for p := 0; p < d.extraPulses; p++ {
		if err := d.pulse(); err != nil {
			return nil, err
		}
	}

	out := make([]int32, len(acc))
	for i, raw := range acc {
		out[i] = signExtend24(raw)
	}
	return out, nil
}

func (d *Device) pulse() error {
	if err := d.port.Write(d.clockPin, platform.High); err != nil {
		return fmt.Errorf("clock high: %w", err)
	}
	if err := d.port.Write(d.clockPin, platform.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	return nil
}

// signExtend24 interprets a 24-bit word as two's complement.
func signExtend24(raw uint32) int32 {
	if raw&0x800000 != 0 {
		return int32(raw) - (1 << 24)
	}
	return int32(raw)
}
