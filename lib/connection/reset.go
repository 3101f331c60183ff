// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"time"

	"github.com/pkg/errors"
)

// On the usual dev boards DTR drives IO0 and RTS drives EN, both through
// inverting transistors.
type lineState struct {
	dtr, rts bool
	hold     time.Duration
}

func (c *Connection) setLines(steps []lineState) error {
	for _, s := range steps {
		err := c.port.SetDTR(s.dtr)
		if err != nil {
			return errors.Wrap(err, "set DTR")
		}

		err = c.port.SetRTS(s.rts)
		if err != nil {
			return errors.Wrap(err, "set RTS")
		}

		if s.hold > 0 {
			c.sleep(s.hold)
		}
	}
	return nil
}

var classicReset = []lineState{
	{dtr: false, rts: true, hold: 100 * time.Millisecond}, // EN low
	{dtr: true, rts: false, hold: 50 * time.Millisecond},  // IO0 low, EN high
	{dtr: false, rts: false},
}

// USB-Serial-JTAG decodes the line changes itself, so the order differs
var usbJTAGReset = []lineState{
	{dtr: false, rts: false, hold: 100 * time.Millisecond},
	{dtr: true, rts: false, hold: 100 * time.Millisecond},
	{dtr: false, rts: true},
	{dtr: false, rts: true, hold: 100 * time.Millisecond},
	{dtr: false, rts: false},
}

var hardReset = []lineState{
	{dtr: false, rts: true, hold: 100 * time.Millisecond},
	{dtr: false, rts: false},
}

func (c *Connection) enterBootloader(usbJTAG bool) error {
	seq := classicReset
	if usbJTAG {
		seq = usbJTAGReset
	}

	err := c.setLines(seq)
	if err != nil {
		return err
	}

	return c.flushInput()
}

// Reset pulses EN, restarting the chip into its application.
func (c *Connection) Reset() error {
	if c.closed {
		return closedErr
	}
	return c.setLines(hardReset)
}
