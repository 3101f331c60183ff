// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package command

import (
	"encoding/binary"
	"fmt"
)

// Type is the opcode byte of a bootloader request.
type Type byte

const (
	TypeFlashBegin        Type = 0x02
	TypeFlashData         Type = 0x03
	TypeFlashEnd          Type = 0x04
	TypeSync              Type = 0x08
	TypeWriteReg          Type = 0x09
	TypeReadReg           Type = 0x0a
	TypeSpiSetParams      Type = 0x0b
	TypeSpiAttach         Type = 0x0d
	TypeChangeBaudrate    Type = 0x0f
	TypeFlashDeflateBegin Type = 0x10
	TypeFlashDeflateData  Type = 0x11
	TypeFlashDeflateEnd   Type = 0x12
	TypeFlashMd5          Type = 0x13
	TypeFlashEncryptData  Type = 0xd4
)

var typeNames = map[Type]string{
	TypeFlashBegin:        "FlashBegin",
	TypeFlashData:         "FlashData",
	TypeFlashEnd:          "FlashEnd",
	TypeSync:              "Sync",
	TypeWriteReg:          "WriteReg",
	TypeReadReg:           "ReadReg",
	TypeSpiSetParams:      "SpiSetParams",
	TypeSpiAttach:         "SpiAttach",
	TypeChangeBaudrate:    "ChangeBaudrate",
	TypeFlashDeflateBegin: "FlashDeflateBegin",
	TypeFlashDeflateData:  "FlashDeflateData",
	TypeFlashDeflateEnd:   "FlashDeflateEnd",
	TypeFlashMd5:          "FlashMd5",
	TypeFlashEncryptData:  "FlashEncryptData",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(0x%02x)", byte(t))
}

// Command is a single request to the bootloader. Payload is the data
// section of the request frame; the header is added by the connection.
type Command interface {
	Type() Type
	Payload() []byte
	Checksum() uint32
}

const checksumSeed = 0xef

// The ROM only checks the checksum of data-carrying commands. It is a
// single byte: 0xef xor'd with every data byte.
func dataChecksum(data []byte) uint32 {
	var sum byte = checksumSeed
	for _, v := range data {
		sum ^= v
	}
	return uint32(sum)
}

func words(vals ...uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SpiAttachParams is the packed SPI pin configuration passed to SpiAttach.
// All zeroes selects the default flash pins.
type SpiAttachParams struct {
	Clk, Q, D, HD, CS uint8
}

func (p SpiAttachParams) Encode() uint32 {
	return uint32(p.Clk) | uint32(p.Q)<<6 | uint32(p.D)<<12 |
		uint32(p.HD)<<18 | uint32(p.CS)<<24
}

type SpiSetParams struct {
	FlashID    uint32
	Size       uint32
	BlockSize  uint32
	SectorSize uint32
	PageSize   uint32
	StatusMask uint32
}

func (c SpiSetParams) Type() Type       { return TypeSpiSetParams }
func (c SpiSetParams) Checksum() uint32 { return 0 }
func (c SpiSetParams) Payload() []byte {
	return words(c.FlashID, c.Size, c.BlockSize, c.SectorSize, c.PageSize, c.StatusMask)
}

// SpiAttach is the ROM variant, which takes an extra (unused) word.
type SpiAttach struct {
	SpiParams SpiAttachParams
}

func (c SpiAttach) Type() Type       { return TypeSpiAttach }
func (c SpiAttach) Checksum() uint32 { return 0 }
func (c SpiAttach) Payload() []byte {
	return words(c.SpiParams.Encode(), 0)
}

type SpiAttachStub struct {
	SpiParams SpiAttachParams
}

func (c SpiAttachStub) Type() Type       { return TypeSpiAttach }
func (c SpiAttachStub) Checksum() uint32 { return 0 }
func (c SpiAttachStub) Payload() []byte {
	return words(c.SpiParams.Encode())
}

// WriteReg writes Value to Address. A nil Mask writes all bits.
type WriteReg struct {
	Address uint32
	Value   uint32
	Mask    *uint32
}

func (c WriteReg) Type() Type       { return TypeWriteReg }
func (c WriteReg) Checksum() uint32 { return 0 }
func (c WriteReg) Payload() []byte {
	mask := uint32(0xffffffff)
	if c.Mask != nil {
		mask = *c.Mask
	}
	return words(c.Address, c.Value, mask, 0)
}

type ReadReg struct {
	Address uint32
}

func (c ReadReg) Type() Type       { return TypeReadReg }
func (c ReadReg) Checksum() uint32 { return 0 }
func (c ReadReg) Payload() []byte  { return words(c.Address) }

type FlashBegin struct {
	Size               uint32
	Blocks             uint32
	BlockSize          uint32
	Offset             uint32
	SupportsEncryption bool
	Encrypt            bool
}

func (c FlashBegin) Type() Type       { return TypeFlashBegin }
func (c FlashBegin) Checksum() uint32 { return 0 }
func (c FlashBegin) Payload() []byte {
	buf := words(c.Size, c.Blocks, c.BlockSize, c.Offset)
	if c.SupportsEncryption {
		buf = append(buf, words(boolWord(c.Encrypt))...)
	}
	return buf
}

type FlashDeflateBegin struct {
	Size               uint32
	Blocks             uint32
	BlockSize          uint32
	Offset             uint32
	SupportsEncryption bool
}

func (c FlashDeflateBegin) Type() Type       { return TypeFlashDeflateBegin }
func (c FlashDeflateBegin) Checksum() uint32 { return 0 }
func (c FlashDeflateBegin) Payload() []byte {
	buf := words(c.Size, c.Blocks, c.BlockSize, c.Offset)
	if c.SupportsEncryption {
		// Encrypted deflate writes are not supported, so always 0
		buf = append(buf, words(0)...)
	}
	return buf
}

// Block is the common body of the data-carrying commands. If PadTo is
// larger than len(Data), the data is padded with PadByte.
type Block struct {
	Sequence uint32
	PadTo    int
	PadByte  byte
	Data     []byte
}

func (b Block) padded() []byte {
	if b.PadTo <= len(b.Data) {
		return b.Data
	}
	data := make([]byte, b.PadTo)
	copy(data, b.Data)
	for i := len(b.Data); i < b.PadTo; i++ {
		data[i] = b.PadByte
	}
	return data
}

func (b Block) Checksum() uint32 {
	return dataChecksum(b.padded())
}

func (b Block) Payload() []byte {
	data := b.padded()
	buf := words(uint32(len(data)), b.Sequence, 0, 0)
	return append(buf, data...)
}

type FlashData struct{ Block }

func (c FlashData) Type() Type { return TypeFlashData }

type FlashEncryptData struct{ Block }

func (c FlashEncryptData) Type() Type { return TypeFlashEncryptData }

type FlashDeflateData struct{ Block }

func (c FlashDeflateData) Type() Type { return TypeFlashDeflateData }

// The end commands take "stay in the loader" rather than "reboot", hence
// the inversion.
type FlashEnd struct {
	Reboot bool
}

func (c FlashEnd) Type() Type       { return TypeFlashEnd }
func (c FlashEnd) Checksum() uint32 { return 0 }
func (c FlashEnd) Payload() []byte  { return words(boolWord(!c.Reboot)) }

type FlashDeflateEnd struct {
	Reboot bool
}

func (c FlashDeflateEnd) Type() Type       { return TypeFlashDeflateEnd }
func (c FlashDeflateEnd) Checksum() uint32 { return 0 }
func (c FlashDeflateEnd) Payload() []byte  { return words(boolWord(!c.Reboot)) }

type Sync struct{}

func (c Sync) Type() Type       { return TypeSync }
func (c Sync) Checksum() uint32 { return 0 }
func (c Sync) Payload() []byte {
	buf := []byte{0x07, 0x07, 0x12, 0x20}
	for i := 0; i < 32; i++ {
		buf = append(buf, 0x55)
	}
	return buf
}

type ChangeBaudrate struct {
	New, Prior uint32
}

func (c ChangeBaudrate) Type() Type       { return TypeChangeBaudrate }
func (c ChangeBaudrate) Checksum() uint32 { return 0 }
func (c ChangeBaudrate) Payload() []byte  { return words(c.New, c.Prior) }

type FlashMd5 struct {
	Offset, Size uint32
}

func (c FlashMd5) Type() Type       { return TypeFlashMd5 }
func (c FlashMd5) Checksum() uint32 { return 0 }
func (c FlashMd5) Payload() []byte  { return words(c.Offset, c.Size, 0, 0) }
