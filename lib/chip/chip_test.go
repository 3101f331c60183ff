// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package chip

import (
	"testing"
)

func TestQuirks(t *testing.T) {
	cases := []struct {
		chip      Chip
		wprotect  uint32
		wdtConfig uint32
	}{
		{Esp32c3, 0x600080a8, 0x60008090},
		{Esp32s3, 0x600080b0, 0x60008098},
		{Esp32c6, 0x600b1c18, 0x600b1c00},
	}

	for _, c := range cases {
		seq := Quirks(c.chip)
		exp := []RegWrite{
			{c.wprotect, 0x50d83aa1},
			{c.wdtConfig, 0},
			{c.wprotect, 0},
		}
		if len(seq) != len(exp) {
			t.Fatalf("%s: expected %d writes, got %d", c.chip, len(exp), len(seq))
		}
		for i := range exp {
			if seq[i] != exp[i] {
				t.Errorf("%s write %d: expected %+v, got %+v", c.chip, i, exp[i], seq[i])
			}
		}
	}

	for _, c := range []Chip{Esp32, Esp32c2, Esp32s2, Unknown} {
		if Quirks(c) != nil {
			t.Errorf("%s: expected no quirks", c)
		}
	}
}

func TestQuirkTable(t *testing.T) {
	table := DefaultQuirks()

	err := table.Add(Unknown, Watchdog{WriteProtect: 1, Config: 2})
	if err == nil {
		t.Error("expected error for unknown chip")
	}

	err = table.Add(Esp32c2, Watchdog{WriteProtect: 1})
	if err == nil {
		t.Error("expected error for zero register")
	}
	if table.Quirks(Esp32c2) != nil {
		t.Error("failed add shouldn't add quirks")
	}

	err = table.Add(Esp32h2, Watchdog{WriteProtect: 0x600b1c18, Config: 0x600b1c00})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Quirks(Esp32h2)) != 3 {
		t.Error("added entry missing")
	}
	if len(table.Quirks(Esp32c3)) != 3 {
		t.Error("built-in entry missing from copy")
	}

	// Other tables, and the built-in one, are unaffected
	if Quirks(Esp32h2) != nil || DefaultQuirks().Quirks(Esp32h2) != nil {
		t.Error("added entry leaked into the built-in table")
	}
}

func TestParseChip(t *testing.T) {
	cases := map[string]Chip{
		"esp32":    Esp32,
		"ESP32-C3": Esp32c3,
		"esp32s3":  Esp32s3,
		" esp32h2": Esp32h2,
	}
	for str, exp := range cases {
		got, err := ParseChip(str)
		if err != nil {
			t.Errorf("%q: %v", str, err)
		} else if got != exp {
			t.Errorf("%q: expected %s, got %s", str, exp, got)
		}
	}

	if _, err := ParseChip("esp8266"); err == nil {
		t.Error("expected error for esp8266")
	}

	var c Chip
	if err := c.UnmarshalText([]byte("esp32c6")); err != nil || c != Esp32c6 {
		t.Errorf("UnmarshalText: %s, %v", c, err)
	}
	if text, _ := c.MarshalText(); string(text) != "esp32c6" {
		t.Errorf("MarshalText: %s", text)
	}
}

func TestBaseline(t *testing.T) {
	if !Esp32.IsBaseline() {
		t.Error("esp32 should be baseline")
	}
	for _, c := range []Chip{Esp32c2, Esp32c3, Esp32c6, Esp32h2, Esp32s2, Esp32s3} {
		if c.IsBaseline() {
			t.Errorf("%s shouldn't be baseline", c)
		}
	}
}

func TestFromMagic(t *testing.T) {
	c, err := FromMagic(0x00f01d83)
	if err != nil || c != Esp32 {
		t.Errorf("expected esp32, got %s, %v", c, err)
	}

	c, err = FromMagic(0x1b31506f)
	if err != nil || c != Esp32c3 {
		t.Errorf("expected esp32c3, got %s, %v", c, err)
	}

	_, err = FromMagic(0xdeadbeef)
	if err == nil {
		t.Error("expected error for unknown magic")
	}
}

func TestFlashWriteSize(t *testing.T) {
	if Esp32.FlashWriteSize(false) != 0x400 {
		t.Errorf("ROM: 0x%x", Esp32.FlashWriteSize(false))
	}
	if Esp32c3.FlashWriteSize(true) != 0x4000 {
		t.Errorf("stub: 0x%x", Esp32c3.FlashWriteSize(true))
	}
}

func TestFlashSize(t *testing.T) {
	cases := map[string]uint32{
		"256KB": 256 * 1024,
		"1mb":   1024 * 1024,
		"4MB":   4 * 1024 * 1024,
		"128MB": 128 * 1024 * 1024,
	}
	for str, exp := range cases {
		fs, err := ParseFlashSize(str)
		if err != nil {
			t.Errorf("%q: %v", str, err)
			continue
		}
		if fs.Bytes() != exp {
			t.Errorf("%q: expected %d bytes, got %d", str, exp, fs.Bytes())
		}
	}

	if _, err := ParseFlashSize("3MB"); err == nil {
		t.Error("expected error for 3MB")
	}
}
