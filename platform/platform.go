package platform

import (
	"fmt"
	"strings"

	"github.com/strainrig/gauged/config"
)

// Level is the logic level of a digital pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Direction configures a pin as input or output.
type Direction int

const (
	Input Direction = iota
	Output
)

// Port is the digital I/O contract the acquisition engine drives. Pins
// are addressed by their BCM number. Callers must configure a pin's
// direction before use; a pin configured as output is never read and a
// pin configured as input is never written.
type Port interface {
	SetDirection(pin int, dir Direction) error
	Write(pin int, level Level) error
	Read(pin int) (Level, error)
	Close() error
}

// Open selects and initializes the Port implementation for the given
// configuration. On real hardware the GPIO library is chosen by the
// GPIOLibrary setting; otherwise a simulated port modelling the
// converters is returned.
func Open(conf *config.Config) (Port, error) {
	if !conf.RealHW {
		sim := NewSimulatedPort(conf.Hardware.ClockPin, conf.Hardware.DataPins)
		sim.SetSource(NoiseSource(0, 200))
		return sim, nil
	}
	switch strings.ToLower(conf.Hardware.GPIOLibrary) {
	case "periph.io", "":
		return NewPeriphPort()
	case "go-rpio":
		return NewRpioPort()
	}
	return nil, fmt.Errorf("unknown GPIO library: %s", conf.Hardware.GPIOLibrary)
}
