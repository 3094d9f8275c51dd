package platform

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphPort drives the Raspberry Pi GPIO header through periph.io.
type PeriphPort struct {
	pins map[int]gpio.PinIO
}

// NewPeriphPort initializes the periph.io host drivers and returns a
// ready-to-use port.
func NewPeriphPort() (*PeriphPort, error) {
	slog.Info("Initialising GPIO via periph.io...")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	return &PeriphPort{pins: make(map[int]gpio.PinIO)}, nil
}

func (p *PeriphPort) pin(num int) (gpio.PinIO, error) {
	if pin, ok := p.pins[num]; ok {
		return pin, nil
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", num))
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %d", num)
	}
	p.pins[num] = pin
	return pin, nil
}

func (p *PeriphPort) SetDirection(num int, dir Direction) error {
	pin, err := p.pin(num)
	if err != nil {
		return err
	}
	if dir == Output {
		if err := pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to set pin %d to output: %w", num, err)
		}
		return nil
	}
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("failed to set pin %d to input: %w", num, err)
	}
	return nil
}

func (p *PeriphPort) Write(num int, level Level) error {
	pin, err := p.pin(num)
	if err != nil {
		return err
	}
	return pin.Out(gpio.Level(level))
}

func (p *PeriphPort) Read(num int) (Level, error) {
	pin, err := p.pin(num)
	if err != nil {
		return Low, err
	}
	return Level(pin.Read()), nil
}

func (p *PeriphPort) Close() error {
	for _, pin := range p.pins {
		pin.Halt()
	}
	p.pins = nil
	return nil
}
