package hx711

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainrig/gauged/config"
	"github.com/strainrig/gauged/platform"
)

// fakePort is a deterministic Port presenting scripted 24-bit words on
// the data pins, shifted out MSB-first on consecutive rising clock
// edges. It records protocol violations (writes to data pins, reads of
// the clock pin) and the number of clock pulses issued.
type fakePort struct {
	clockPin int
	dataPins []int
	dirs     map[int]platform.Direction

	clock platform.Level
	edges int
	words []uint32
	idle  []platform.Level

	clockWrites []platform.Level
	dataWrites  int
	clockReads  int
}

func newFakePort(clockPin int, dataPins []int) *fakePort {
	return &fakePort{
		clockPin: clockPin,
		dataPins: dataPins,
		dirs:     make(map[int]platform.Direction),
		words:    make([]uint32, len(dataPins)),
		idle:     make([]platform.Level, len(dataPins)),
	}
}

func (f *fakePort) channel(pin int) int {
	for i, p := range f.dataPins {
		if p == pin {
			return i
		}
	}
	return -1
}

func (f *fakePort) SetDirection(pin int, dir platform.Direction) error {
	f.dirs[pin] = dir
	return nil
}

func (f *fakePort) Write(pin int, level platform.Level) error {
	if pin != f.clockPin {
		f.dataWrites++
		return nil
	}
	f.clockWrites = append(f.clockWrites, level)
	if level == platform.High && f.clock == platform.Low {
		f.edges++
	}
	f.clock = level
	return nil
}

func (f *fakePort) Read(pin int) (platform.Level, error) {
	if pin == f.clockPin {
		f.clockReads++
		return platform.Low, nil
	}
	ch := f.channel(pin)
	if f.edges >= 1 && f.edges <= 24 {
		bit := (f.words[ch] >> (24 - f.edges)) & 1
		return bit == 1, nil
	}
	return f.idle[ch], nil
}

func (f *fakePort) Close() error { return nil }

func hwConfig(gain int, dataPins ...int) config.HardwareConfig {
	return config.HardwareConfig{
		ClockPin:     11,
		DataPins:     dataPins,
		Gain:         gain,
		PollInterval: time.Millisecond,
	}
}

func TestNewRejectsInvalidGain(t *testing.T) {
	port := newFakePort(11, []int{5})
	_, err := New(port, hwConfig(100, 5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGain))
}

func TestNewConfiguresPinsAndPowersUp(t *testing.T) {
	port := newFakePort(11, []int{5, 6})
	_, err := New(port, hwConfig(128, 5, 6))
	require.NoError(t, err)

	assert.Equal(t, platform.Output, port.dirs[11])
	assert.Equal(t, platform.Input, port.dirs[5])
	assert.Equal(t, platform.Input, port.dirs[6])
	// Power-up is a single clock-low write, no pulses issued yet.
	assert.Equal(t, []platform.Level{platform.Low}, port.clockWrites)
	assert.Equal(t, 0, port.edges)
}

func TestReadRawPulseCounts(t *testing.T) {
	cases := []struct {
		gain       int
		wantPulses int
	}{
		{gain: 128, wantPulses: 25},
		{gain: 64, wantPulses: 27},
	}
	for _, tc := range cases {
		port := newFakePort(11, []int{5, 6, 13})
		dev, err := New(port, hwConfig(tc.gain, 5, 6, 13))
		require.NoError(t, err)

		vec, err := dev.ReadRaw()
		require.NoError(t, err)

		assert.Len(t, vec, 3, "gain %d", tc.gain)
		assert.Equal(t, tc.wantPulses, port.edges, "gain %d", tc.gain)
		assert.Zero(t, port.dataWrites, "data pins must never be written")
		assert.Zero(t, port.clockReads, "clock pin must never be read")
	}
}

func TestReadRawTwosComplement(t *testing.T) {
	port := newFakePort(11, []int{5, 6, 13, 19})
	dev, err := New(port, hwConfig(128, 5, 6, 13, 19))
	require.NoError(t, err)

	port.words = []uint32{0x800000, 0x7FFFFF, 0x000001, 0x000000}

	vec, err := dev.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, []int32{-8388608, 8388607, 1, 0}, vec)
}

func TestReadRawIsMSBFirst(t *testing.T) {
	port := newFakePort(11, []int{5})
	dev, err := New(port, hwConfig(128, 5))
	require.NoError(t, err)

	// 1000...0 shifted out MSB-first must land in bit 23, not bit 0.
	port.words = []uint32{0x400000}

	vec, err := dev.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, []int32{0x400000}, vec)
}

func TestIsReady(t *testing.T) {
	port := newFakePort(11, []int{5, 6, 13})
	dev, err := New(port, hwConfig(128, 5, 6, 13))
	require.NoError(t, err)

	assert.True(t, dev.IsReady(), "all data lines low means ready")

	port.idle[1] = platform.High
	assert.False(t, dev.IsReady(), "a single high data line means not ready")
	assert.Equal(t, []int{1}, dev.NotReadyChannels())

	port.idle[0] = platform.High
	port.idle[2] = platform.High
	assert.False(t, dev.IsReady())
	assert.Equal(t, []int{0, 1, 2}, dev.NotReadyChannels())
}

func TestReadSurfacesNotReady(t *testing.T) {
	port := newFakePort(11, []int{5})
	dev, err := New(port, hwConfig(128, 5))
	require.NoError(t, err)

	port.idle[0] = platform.High
	_, err = dev.Read()
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Equal(t, 0, port.edges, "no pulses may be issued when not ready")
}

func TestWaitReadyHonoursDeadline(t *testing.T) {
	port := newFakePort(11, []int{5})
	dev, err := New(port, hwConfig(128, 5))
	require.NoError(t, err)

	port.idle[0] = platform.High
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = dev.WaitReady(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReadAgainstSimulatedPort(t *testing.T) {
	sim := platform.NewSimulatedPort(11, []int{5, 6})
	sim.SetConversionPeriod(20 * time.Millisecond)
	sim.Enqueue([]int32{1234, -5678})

	dev, err := New(sim, hwConfig(128, 5, 6))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dev.WaitReady(ctx))

	vec, err := dev.Read()
	require.NoError(t, err)
	assert.Equal(t, []int32{1234, -5678}, vec)

	// The converters drop back to not-ready until the next conversion
	// period has elapsed.
	assert.False(t, dev.IsReady())
	require.NoError(t, dev.WaitReady(ctx))
}
