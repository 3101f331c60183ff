// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package chip

import (
	"fmt"
	"strings"
)

type Chip int

const (
	Unknown Chip = iota
	Esp32
	Esp32c2
	Esp32c3
	Esp32c6
	Esp32h2
	Esp32s2
	Esp32s3
)

var chipNames = map[Chip]string{
	Esp32:   "esp32",
	Esp32c2: "esp32c2",
	Esp32c3: "esp32c3",
	Esp32c6: "esp32c6",
	Esp32h2: "esp32h2",
	Esp32s2: "esp32s2",
	Esp32s3: "esp32s3",
}

func (c Chip) String() string {
	if s, ok := chipNames[c]; ok {
		return s
	}
	return "unknown"
}

// IsBaseline is true for the original ESP32, whose ROM handles encrypted
// writes with a dedicated data command instead of a flag in FlashBegin.
func (c Chip) IsBaseline() bool {
	return c == Esp32
}

func ParseChip(str string) (Chip, error) {
	norm := strings.ToLower(strings.Replace(strings.TrimSpace(str), "-", "", -1))
	for c, name := range chipNames {
		if name == norm {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("unrecognised chip: %s", str)
}

func (c *Chip) UnmarshalText(text []byte) error {
	parsed, err := ParseChip(string(text))
	(*c) = parsed
	return err
}

func (c Chip) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

const (
	EspressifVID uint16 = 0x303a
	// USBSerialJTAGPID is the product ID of the built-in USB-Serial-JTAG
	// peripheral on the newer chips.
	USBSerialJTAGPID uint16 = 0x1001
)

// MagicRegister holds a per-chip constant which identifies the ROM.
const MagicRegister uint32 = 0x40001000

var magicValues = map[uint32]Chip{
	0x00f01d83: Esp32,
	0x6f51306f: Esp32c2,
	0x7c41a06f: Esp32c2,
	0x6921506f: Esp32c3,
	0x1b31506f: Esp32c3,
	0x4881606f: Esp32c3,
	0x4361606f: Esp32c3,
	0x2ce0806f: Esp32c6,
	0xd7b73e80: Esp32h2,
	0x000007c6: Esp32s2,
	0x00000009: Esp32s3,
}

// FromMagic identifies a chip from the value of MagicRegister.
func FromMagic(magic uint32) (Chip, error) {
	c, ok := magicValues[magic]
	if !ok {
		return Unknown, fmt.Errorf("unrecognised chip magic value 0x%08x", magic)
	}
	return c, nil
}

const (
	// ROM loaders only accept small writes
	romFlashWriteSize = 0x400
	// The stub buffers much larger blocks
	stubFlashWriteSize = 0x4000
)

// FlashWriteSize is the payload size of each flash data block.
func (c Chip) FlashWriteSize(useStub bool) int {
	if useStub {
		return stubFlashWriteSize
	}
	return romFlashWriteSize
}
