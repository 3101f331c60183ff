// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package chip

import "github.com/pkg/errors"

// RegWrite is a single register write issued before flashing.
type RegWrite struct {
	Address uint32
	Value   uint32
}

// Writing this to the RTC write-protect register unlocks the watchdog
// config registers. Writing 0 locks them again.
const WdtWriteProtectKey uint32 = 0x50d83aa1

// Watchdog describes where a chip's RTC watchdog registers live.
type Watchdog struct {
	WriteProtect uint32
	Config       uint32
}

// Sequence is unlock, disable, relock.
func (w Watchdog) Sequence() []RegWrite {
	return []RegWrite{
		{Address: w.WriteProtect, Value: WdtWriteProtectKey},
		{Address: w.Config, Value: 0},
		{Address: w.WriteProtect, Value: 0},
	}
}

// Chips which can reset mid-flash when connected over USB-Serial-JTAG.
// The stub doesn't cover these either, so they are applied regardless.
var watchdogs = map[Chip]Watchdog{
	Esp32c3: {WriteProtect: 0x600080a8, Config: 0x60008090},
	Esp32s3: {WriteProtect: 0x600080b0, Config: 0x60008098},
	Esp32c6: {WriteProtect: 0x600b1c18, Config: 0x600b1c00},
}

// Quirks returns the built-in register writes needed to disable the
// watchdog on 'c', or nil if the chip doesn't need any.
func Quirks(c Chip) []RegWrite {
	return QuirkTable(watchdogs).Quirks(c)
}

// QuirkTable maps chips to their watchdog registers.
type QuirkTable map[Chip]Watchdog

// DefaultQuirks returns a copy of the built-in table, which can be
// extended with Add without affecting other sessions.
func DefaultQuirks() QuirkTable {
	t := make(QuirkTable, len(watchdogs))
	for c, wdt := range watchdogs {
		t[c] = wdt
	}
	return t
}

func (t QuirkTable) Quirks(c Chip) []RegWrite {
	wdt, ok := t[c]
	if !ok {
		return nil
	}
	return wdt.Sequence()
}

// Add adds or replaces the watchdog entry for 'c'.
func (t QuirkTable) Add(c Chip, wdt Watchdog) error {
	if c == Unknown {
		return errors.New("can't add watchdog for unknown chip")
	}
	if wdt.WriteProtect == 0 || wdt.Config == 0 {
		return errors.New("watchdog registers must be non-zero")
	}
	t[c] = wdt
	return nil
}
