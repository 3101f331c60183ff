// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"

	"github.com/usedbytes/espflash-go/lib/chip"
)

type Connection struct {
	Port       string `toml:"port,omitempty"`
	Baud       int    `toml:"baud,omitempty"`
	NoCompress bool   `toml:"no_compress"`
	ProbeUSB   bool   `toml:"probe_usb"`
}

func (c *Connection) String() string {
	var s string
	s += "Connection:\n"
	s += stringIfNotEmpty("   Port:", c.Port)
	if c.Baud != 0 {
		s += fmt.Sprintf("   Baud: %d\n", c.Baud)
	}
	s += fmt.Sprintf("   Compression: %v\n", !c.NoCompress)
	return s
}

type Target struct {
	// Chip is detected from the device if not set
	Chip      chip.Chip      `toml:"chip,omitempty"`
	FlashSize chip.FlashSize `toml:"flash_size"`
	UseStub   bool           `toml:"use_stub"`
	Encrypt   bool           `toml:"encrypt"`
	Verify    bool           `toml:"verify"`
}

// ShouldVerify reports whether written segments can be checked against
// the flash MD5. Encrypted flash never matches the plaintext digest.
func (t *Target) ShouldVerify() bool {
	return t.Verify && !t.Encrypt
}

func (t *Target) String() string {
	var s string
	s += "Target:\n"
	s += fmt.Sprintf("   Chip: %s\n", t.Chip)
	s += fmt.Sprintf("   Flash Size: %s\n", t.FlashSize)
	s += fmt.Sprintf("   Stub: %v\n", t.UseStub)
	s += fmt.Sprintf("   Encrypt: %v\n", t.Encrypt)
	s += fmt.Sprintf("   Verify: %v\n", t.ShouldVerify())
	return s
}

// Quirk adds a watchdog-disable entry for a chip which isn't in the
// built-in table.
type Quirk struct {
	Chip         chip.Chip `toml:"chip"`
	WriteProtect uint32    `toml:"wprotect"`
	WdtConfig    uint32    `toml:"wdt_config"`
}

type Segment struct {
	Address  uint32 `toml:"address"`
	DataFile string `toml:"data_file"`
	// CheckCRC is the CRC16/XMODEM of the file. 0 skips the check.
	CheckCRC uint16 `toml:"check_crc,omitempty"`
	Data     []byte `toml:"-"`
}

func (s *Segment) String() string {
	var str string
	str += fmt.Sprintf("Segment 0x%08x:\n", s.Address)
	str += stringIfNotEmpty("   DataFile:", s.DataFile)
	if s.CheckCRC != 0 {
		str += fmt.Sprintf("   CheckCRC: 0x%04x\n", s.CheckCRC)
	}
	if len(s.Data) != 0 {
		str += fmt.Sprintf("   Size: %d (0x%x) bytes\n", len(s.Data), len(s.Data))
	}
	return str
}

type Config struct {
	Connection *Connection `toml:"connection,omitempty"`
	Target     *Target     `toml:"target,omitempty"`
	Quirks     []*Quirk    `toml:"quirk,omitempty"`
	Segments   []*Segment  `toml:"segment,omitempty"`

	// Directory which relative data_file paths are resolved against
	dir string
}

func (c *Config) String() string {
	var s string
	if c.Connection != nil {
		s += c.Connection.String()
	}
	if c.Target != nil {
		s += c.Target.String()
	}
	for _, seg := range c.Segments {
		s += seg.String()
	}
	return s
}
