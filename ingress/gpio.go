//go:build !tinygo

package ingress

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"

	"eventtrace.dev/trace"
)

// InitHost initializes the periph.io host driver registry. Call it
// once before constructing any GPIOSource.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("ingress: host.Init: %w", err)
	}
	return nil
}

// Pin is the subset of periph.io's gpio.PinIn that GPIOSource needs:
// configurable pull/edge and a level read. Any real gpio.PinIn
// satisfies it, and so does a test double with no hardware behind it.
type Pin interface {
	fmt.Stringer
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
}

// GPIOPin is one event source's trigger line, plus the data pins that
// make up its payload (LSB first), per spec §4.1's "sample trigger
// bits and associated data".
type GPIOPin struct {
	Source int
	Pulse  Pin
	Data   []Pin
}

// GPIOSource samples a fixed set of GPIO pins once per Sample call.
// Unlike the debounced, edge-triggered button sampling it's adapted
// from, an event source's trigger line is read level-triggered: every
// Sample call that finds the line high yields a trigger, and neither
// this source nor the analyzer coalesces repeated assertions across
// consecutive cycles (spec §4.1 treats every asserted cycle as a
// distinct trigger).
type GPIOSource struct {
	pins []GPIOPin
}

// NewGPIOSource configures every pin for input sampling, using
// periph.io's PinIn the same way a debounced button input configures
// it with gpio.PullUp; trigger and data lines default low rather than
// high, so PullDown is used here instead.
func NewGPIOSource(pins []GPIOPin) (*GPIOSource, error) {
	for _, p := range pins {
		if err := p.Pulse.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("ingress: pin %s: %w", p.Pulse, err)
		}
		for _, d := range p.Data {
			if err := d.In(gpio.PullDown, gpio.NoEdge); err != nil {
				return nil, fmt.Errorf("ingress: pin %s: %w", d, err)
			}
		}
	}
	return &GPIOSource{pins: pins}, nil
}

// Sample reads every configured pin's current level. A pulse pin read
// high contributes a Trigger for its source, with Data packed LSB
// first from the source's data pins.
func (g *GPIOSource) Sample(triggers []trace.Trigger) []trace.Trigger {
	for _, p := range g.pins {
		if p.Pulse.Read() != gpio.High {
			continue
		}
		var data uint32
		for i, d := range p.Data {
			if d.Read() == gpio.High {
				data |= 1 << uint(i)
			}
		}
		triggers = append(triggers, trace.Trigger{Source: p.Source, Data: data})
	}
	return triggers
}
