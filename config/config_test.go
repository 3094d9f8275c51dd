package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
Hardware:
  ClockPin: 11
  DataPins: [5, 6, 13, 19]
  Gain: 128
  Debug: false
  PollInterval: 1ms
  ReadyTimeout: 300ms
Tare:
  SampleCount: 150
  MaxDeviationFactor: 2.5
Outputs:
  Interval: 50ms
  CSV:
    Enabled: true
    Path: "/tmp/gauged.csv"
Logging:
  Level: "DEBUG"
  Format: "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	conf, err := Load(path, true)
	require.NoError(t, err)

	assert.True(t, conf.RealHW)
	assert.Equal(t, path, conf.Configfile)
	assert.Equal(t, 11, conf.Hardware.ClockPin)
	assert.Equal(t, []int{5, 6, 13, 19}, conf.Hardware.DataPins)
	assert.Equal(t, 4, conf.NumChannels())
	assert.Equal(t, 128, conf.Hardware.Gain)
	assert.Equal(t, time.Millisecond, conf.Hardware.PollInterval)
	assert.Equal(t, 300*time.Millisecond, conf.Hardware.ReadyTimeout)
	assert.Equal(t, 150, conf.Tare.SampleCount)
	assert.Equal(t, 2.5, conf.Tare.MaxDeviationFactor)
	assert.True(t, conf.Outputs.CSV.Enabled)
	assert.Equal(t, "/tmp/gauged.csv", conf.Outputs.CSV.Path)
	assert.Equal(t, "DEBUG", conf.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
Hardware:
  ClockPin: 11
  DataPins: [5]
`)

	conf, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "periph.io", conf.Hardware.GPIOLibrary)
	assert.Equal(t, 128, conf.Hardware.Gain)
	assert.Equal(t, time.Millisecond, conf.Hardware.PollInterval)
	assert.Equal(t, 100, conf.Tare.SampleCount)
	assert.Equal(t, 3.0, conf.Tare.MaxDeviationFactor)
	assert.True(t, conf.Outputs.Console.Enabled)
	assert.Equal(t, 500, conf.Viewer.HistorySize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"), false)
	assert.Error(t, err)
}

func TestValidateRejectsUnsupportedGain(t *testing.T) {
	path := writeConfig(t, `
Hardware:
  ClockPin: 11
  DataPins: [5, 6]
  Gain: 100
`)

	_, err := Load(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported gain")
}

func TestValidateRejectsBadWiring(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no data pins",
			yaml: "Hardware:\n  ClockPin: 11\n  DataPins: []\n",
			want: "no data pins",
		},
		{
			name: "duplicate data pin",
			yaml: "Hardware:\n  ClockPin: 11\n  DataPins: [5, 5]\n",
			want: "more than once",
		},
		{
			name: "data pin equals clock pin",
			yaml: "Hardware:\n  ClockPin: 11\n  DataPins: [11]\n",
			want: "more than once",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateRejectsBadTareSettings(t *testing.T) {
	conf := NewConfig()
	conf.Hardware.ClockPin = 11
	conf.Hardware.DataPins = []int{5}
	conf.Tare.MaxDeviationFactor = -1

	err := conf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxDeviationFactor")
}

func TestValidateRejectsCSVWithoutPath(t *testing.T) {
	conf := NewConfig()
	conf.Hardware.ClockPin = 11
	conf.Hardware.DataPins = []int{5}
	conf.Outputs.CSV.Enabled = true

	err := conf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV.Path")
}

func TestWatcherDeliversReload(t *testing.T) {
	path := writeConfig(t, validConfig)
	conf, err := Load(path, false)
	require.NoError(t, err)

	w, err := NewWatcher(conf)
	require.NoError(t, err)
	defer w.Close()

	updated := `
Hardware:
  ClockPin: 11
  DataPins: [5, 6, 13, 19]
Tare:
  SampleCount: 200
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case newConf := <-w.Updates():
		assert.Equal(t, 200, newConf.Tare.SampleCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no config reload delivered")
	}
}

func TestWatcherDropsInvalidReload(t *testing.T) {
	path := writeConfig(t, validConfig)
	conf, err := Load(path, false)
	require.NoError(t, err)

	w, err := NewWatcher(conf)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("Hardware:\n  Gain: 99\n"), 0o644))

	select {
	case conf := <-w.Updates():
		t.Fatalf("invalid config was delivered: %+v", conf)
	case <-time.After(500 * time.Millisecond):
		// expected: nothing arrives
	}
}
