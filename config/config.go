package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

// HardwareConfig describes the physical wiring of the converter
// front-ends. All pin numbers are BCM numbers. The clock pin is shared
// by every converter; the data pins define the channel ordering used in
// every sample vector and offset set.
type HardwareConfig struct {
	GPIOLibrary  string        `yaml:"GPIOLibrary"`
	ClockPin     int           `yaml:"ClockPin"`
	DataPins     []int         `yaml:"DataPins"`
	Gain         int           `yaml:"Gain"`
	Debug        bool          `yaml:"Debug"`
	PollInterval time.Duration `yaml:"PollInterval"`
	ReadyTimeout time.Duration `yaml:"ReadyTimeout"`
}

// TareConfig holds the parameters for the zero-calibration run
// performed at startup and on reload.
type TareConfig struct {
	SampleCount        int     `yaml:"SampleCount"`
	MaxDeviationFactor float64 `yaml:"MaxDeviationFactor"`
}

type CSVConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Path    string `yaml:"Path"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"Enabled"`
	Broker   string `yaml:"Broker"`
	ClientID string `yaml:"ClientID"`
	Topic    string `yaml:"Topic"`
	Username string `yaml:"Username"`
	Password string `yaml:"Password"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"Enabled"`
}

type OutputsConfig struct {
	Interval time.Duration `yaml:"Interval"`
	CSV      CSVConfig     `yaml:"CSV"`
	MQTT     MQTTConfig    `yaml:"MQTT"`
	Console  ConsoleConfig `yaml:"Console"`
}

type ViewerConfig struct {
	Enabled     bool `yaml:"Enabled"`
	HistorySize int  `yaml:"HistorySize"`
}

type LoggingConfig struct {
	Level     string `yaml:"Level"`
	Format    string `yaml:"Format"`
	LogToFile bool   `yaml:"LogToFile"`
	File      string `yaml:"File"`
}

type Config struct {
	RealHW     bool   `yaml:"-"`
	Configfile string `yaml:"-"`

	Hardware HardwareConfig `yaml:"Hardware"`
	Tare     TareConfig     `yaml:"Tare"`
	Outputs  OutputsConfig  `yaml:"Outputs"`
	Viewer   ViewerConfig   `yaml:"Viewer"`
	Logging  LoggingConfig  `yaml:"Logging"`
}

// NewConfig returns a Config populated with defaults. Values not set in
// the config file keep these defaults after Load.
func NewConfig() *Config {
	return &Config{
		Hardware: HardwareConfig{
			GPIOLibrary:  "periph.io",
			Gain:         128,
			PollInterval: time.Millisecond,
			ReadyTimeout: 300 * time.Millisecond,
		},
		Tare: TareConfig{
			SampleCount:        100,
			MaxDeviationFactor: 3.0,
		},
		Outputs: OutputsConfig{
			Interval: 100 * time.Millisecond,
			Console:  ConsoleConfig{Enabled: true},
		},
		Viewer: ViewerConfig{
			HistorySize: 500,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads and validates the YAML configuration file.
func Load(cfile string, realhw bool) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := NewConfig()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.RealHW = realhw
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the configuration for values that cannot work at
// runtime. An unsupported gain is rejected here so it never reaches the
// hardware layer.
func (c *Config) Validate() error {
	if c.Hardware.Gain != 128 && c.Hardware.Gain != 64 {
		return fmt.Errorf("unsupported gain %d: must be 128 or 64", c.Hardware.Gain)
	}
	if len(c.Hardware.DataPins) == 0 {
		return fmt.Errorf("no data pins configured")
	}
	seen := make(map[int]bool, len(c.Hardware.DataPins)+1)
	seen[c.Hardware.ClockPin] = true
	for _, pin := range c.Hardware.DataPins {
		if seen[pin] {
			return fmt.Errorf("pin %d configured more than once", pin)
		}
		seen[pin] = true
	}
	if c.Hardware.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be positive")
	}
	if c.Tare.SampleCount <= 0 {
		return fmt.Errorf("Tare.SampleCount must be positive")
	}
	if c.Tare.MaxDeviationFactor < 0 {
		return fmt.Errorf("Tare.MaxDeviationFactor must not be negative")
	}
	if c.Outputs.Interval <= 0 {
		return fmt.Errorf("Outputs.Interval must be positive")
	}
	if c.Outputs.CSV.Enabled && c.Outputs.CSV.Path == "" {
		return fmt.Errorf("Outputs.CSV.Path must be set when the CSV output is enabled")
	}
	if c.Outputs.MQTT.Enabled && c.Outputs.MQTT.Broker == "" {
		return fmt.Errorf("Outputs.MQTT.Broker must be set when the MQTT output is enabled")
	}
	if c.Viewer.HistorySize <= 0 {
		return fmt.Errorf("Viewer.HistorySize must be positive")
	}
	return nil
}

// NumChannels returns the number of configured converter channels.
func (c *Config) NumChannels() int {
	return len(c.Hardware.DataPins)
}
