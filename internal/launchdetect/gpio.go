// Package launchdetect polls the umbilical GPIO line: HIGH means the
// umbilical is still connected, a falling edge means launch.
package launchdetect

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Detector polls a single input-with-pull GPIO pin.
type Detector struct {
	pin gpio.PinIO
}

// Open initialises the host GPIO driver registry and resolves pin by
// name, configuring it as an input with a pull-up (idle HIGH, connected).
func Open(pinName string) (*Detector, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %s not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure gpio pin %s: %w", pinName, err)
	}
	return &Detector{pin: pin}, nil
}

// WaitForLaunch polls the pin until a falling edge (umbilical
// disconnect) is observed or ctx is cancelled.
func (d *Detector) WaitForLaunch(ctx context.Context, pollPeriod time.Duration) error {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	prev := d.pin.Read()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur := d.pin.Read()
			if prev == gpio.High && cur == gpio.Low {
				return nil
			}
			prev = cur
		}
	}
}

// Connected reports the instantaneous umbilical state (true = connected).
func (d *Detector) Connected() bool {
	return d.pin.Read() == gpio.High
}
