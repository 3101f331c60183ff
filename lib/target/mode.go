// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

import (
	"github.com/usedbytes/espflash-go/lib/command"
)

type TransferMode int

const (
	// ModePlain sends raw blocks with FlashBegin/FlashData
	ModePlain TransferMode = iota
	// ModePlainEncrypted sends raw blocks which the device encrypts as it
	// writes them
	ModePlainEncrypted
	// ModeCompressed sends a zlib stream with the deflate commands
	ModeCompressed
)

func (m TransferMode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModePlainEncrypted:
		return "plain-encrypted"
	case ModeCompressed:
		return "compressed"
	default:
		return "???"
	}
}

// Compressed output can't be encrypted on the device, so asking for
// encryption wins over a negotiated compression capability.
func selectMode(encrypt, compression bool) TransferMode {
	switch {
	case encrypt:
		return ModePlainEncrypted
	case compression:
		return ModeCompressed
	default:
		return ModePlain
	}
}

const (
	SectorSize = 0x1000
	PadByte    = 0xff
)

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// EraseSize is the size of the region erased ahead of writing 'n' bytes:
// whole sectors, aligned to the encryption unit if required.
func EraseSize(n int, encrypt bool) uint32 {
	size := uint32(BlockCount(n, SectorSize) * SectorSize)
	if encrypt {
		return alignUp(size, 32)
	}
	return alignUp(size, 4)
}

// segmentWriter sends one segment using a particular transfer mode.
type segmentWriter interface {
	// begin issues the begin command and returns the blocks to send
	begin(conn Connection) (*Chunks, error)
	// writeBlock sends block number 'seq'. 'end' is the offset just past
	// the block in the buffer returned by begin.
	writeBlock(conn Connection, seq uint32, block []byte, end int, last bool) error
}

type plainWriter struct {
	seg        Segment
	blockSize  int
	eraseSize  uint32
	supportsEn bool
	encrypt    bool
	// encryptCmd selects FlashEncryptData over FlashData
	encryptCmd bool
}

func (w *plainWriter) begin(conn Connection) (*Chunks, error) {
	chunks := NewChunks(w.seg.Data, w.blockSize)

	err := send(conn, command.TypeFlashBegin.TimeoutForSize(w.eraseSize), command.FlashBegin{
		Size:               w.eraseSize,
		Blocks:             uint32(chunks.Len()),
		BlockSize:          uint32(w.blockSize),
		Offset:             w.seg.Addr,
		SupportsEncryption: w.supportsEn,
		Encrypt:            w.encrypt,
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func (w *plainWriter) writeBlock(conn Connection, seq uint32, block []byte, end int, last bool) error {
	blk := command.Block{
		Sequence: seq,
		PadTo:    w.blockSize,
		PadByte:  PadByte,
		Data:     block,
	}

	var cmd command.Command = command.FlashData{Block: blk}
	if w.encryptCmd {
		cmd = command.FlashEncryptData{Block: blk}
	}

	return send(conn, cmd.Type().TimeoutForSize(uint32(len(block))), cmd)
}

type deflateWriter struct {
	seg        Segment
	blockSize  int
	eraseSize  uint32
	supportsEn bool

	decoder *blockDecoder
}

func (w *deflateWriter) begin(conn Connection) (*Chunks, error) {
	compressed, err := compress(w.seg.Data)
	if err != nil {
		return nil, err
	}

	w.decoder, err = newBlockDecoder(compressed)
	if err != nil {
		return nil, err
	}

	chunks := NewChunks(compressed, w.blockSize)

	err = send(conn, command.TypeFlashDeflateBegin.TimeoutForSize(w.eraseSize), command.FlashDeflateBegin{
		Size:               uint32(len(w.seg.Data)),
		Blocks:             uint32(chunks.Len()),
		BlockSize:          uint32(w.blockSize),
		Offset:             w.seg.Addr,
		SupportsEncryption: w.supportsEn,
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func (w *deflateWriter) writeBlock(conn Connection, seq uint32, block []byte, end int, last bool) error {
	// The device has to write out the decoded bytes, so that's what the
	// timeout needs to cover
	decoded, err := w.decoder.Decode(end, last)
	if err != nil {
		return err
	}

	cmd := command.FlashDeflateData{Block: command.Block{
		Sequence: seq,
		PadTo:    0,
		PadByte:  PadByte,
		Data:     block,
	}}

	return send(conn, cmd.Type().TimeoutForSize(uint32(decoded)), cmd)
}
