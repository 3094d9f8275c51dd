package platform

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioPort drives the Raspberry Pi GPIO header through go-rpio's
// /dev/gpiomem mapping. Alternative to PeriphPort for kernels where
// the periph.io sysfs fallback is too slow for the converter's clock
// timing.
type RpioPort struct{}

func NewRpioPort() (*RpioPort, error) {
	slog.Info("Initialising GPIO via go-rpio...")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	return &RpioPort{}, nil
}

func (p *RpioPort) SetDirection(num int, dir Direction) error {
	pin := rpio.Pin(num)
	if dir == Output {
		pin.Output()
	} else {
		pin.Input()
	}
	return nil
}

func (p *RpioPort) Write(num int, level Level) error {
	if level == High {
		rpio.Pin(num).High()
	} else {
		rpio.Pin(num).Low()
	}
	return nil
}

func (p *RpioPort) Read(num int) (Level, error) {
	return rpio.Pin(num).Read() == rpio.High, nil
}

func (p *RpioPort) Close() error {
	return rpio.Close()
}
