// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package chip

import (
	"fmt"
	"strings"
)

// FlashSize is one of the flash chip sizes the loaders understand.
type FlashSize int

const (
	Flash256Kb FlashSize = iota
	Flash512Kb
	Flash1Mb
	Flash2Mb
	Flash4Mb
	Flash8Mb
	Flash16Mb
	Flash32Mb
	Flash64Mb
	Flash128Mb
)

var flashSizeNames = []string{
	"256KB", "512KB", "1MB", "2MB", "4MB", "8MB", "16MB", "32MB", "64MB", "128MB",
}

// Bytes returns the flash size in bytes.
func (f FlashSize) Bytes() uint32 {
	return (256 * 1024) << uint(f)
}

func (f FlashSize) String() string {
	if f < 0 || int(f) >= len(flashSizeNames) {
		return fmt.Sprintf("FlashSize(%d)", int(f))
	}
	return flashSizeNames[f]
}

func ParseFlashSize(str string) (FlashSize, error) {
	norm := strings.ToUpper(strings.TrimSpace(str))
	for i, name := range flashSizeNames {
		if name == norm {
			return FlashSize(i), nil
		}
	}
	return Flash4Mb, fmt.Errorf("unrecognised flash size: %s", str)
}

func (f *FlashSize) UnmarshalText(text []byte) error {
	parsed, err := ParseFlashSize(string(text))
	(*f) = parsed
	return err
}

func (f FlashSize) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
