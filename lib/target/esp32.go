// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/espflash-go/lib/command"
	"github.com/usedbytes/log"
)

type state int

const (
	stateIdle state = iota
	stateAttached
	stateStreaming
	stateFinished
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAttached:
		return "attached"
	case stateStreaming:
		return "streaming"
	case stateFinished:
		return "finished"
	case stateFailed:
		return "failed"
	default:
		return "???"
	}
}

type chipWriteSizer struct {
	chip    chip.Chip
	useStub bool
}

func (c chipWriteSizer) FlashWriteSize(conn Connection) (int, error) {
	return c.chip.FlashWriteSize(c.useStub), nil
}

// Option configures an Esp32Target.
type Option func(*Esp32Target)

// WithWriteSizer overrides the chip's default flash block size.
func WithWriteSizer(ws WriteSizer) Option {
	return func(t *Esp32Target) {
		t.writeSizer = ws
	}
}

// WithQuirks replaces the built-in chip quirk table.
func WithQuirks(table chip.QuirkTable) Option {
	return func(t *Esp32Target) {
		t.quirks = table
	}
}

// Esp32Target writes segments to the SPI flash attached to an ESP32 (or
// one of its variants), through either the ROM loader or the stub.
//
// Usage is Begin once, WriteSegment for each segment and then Finish. If
// any call fails the transfer can't be resumed: reconnect and start again
// from Begin.
type Esp32Target struct {
	chip      chip.Chip
	spiParams command.SpiAttachParams
	flashSize chip.FlashSize
	useStub   bool
	encrypt   bool

	writeSizer WriteSizer
	quirks     chip.QuirkTable

	state state
	mode  TransferMode
}

func NewEsp32Target(c chip.Chip, spiParams command.SpiAttachParams, flashSize chip.FlashSize,
	useStub, encrypt bool, opts ...Option) *Esp32Target {

	t := &Esp32Target{
		chip:       c,
		spiParams:  spiParams,
		flashSize:  flashSize,
		useStub:    useStub,
		encrypt:    encrypt,
		writeSizer: chipWriteSizer{chip: c, useStub: useStub},
		quirks:     chip.DefaultQuirks(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Mode is the transfer mode chosen by Begin.
func (t *Esp32Target) Mode() TransferMode {
	return t.mode
}

func (t *Esp32Target) expect(op string, states ...state) error {
	for _, s := range states {
		if t.state == s {
			return nil
		}
	}
	return fmt.Errorf("%s: invalid in state '%s'", op, t.state)
}

// The ROM on the original ESP32 and the stub use FlashEncryptData for
// encrypted writes, so only the other ROMs take the flag in FlashBegin.
func (t *Esp32Target) supportsEncryption() bool {
	return !t.chip.IsBaseline() && !t.useStub
}

func (t *Esp32Target) Begin(conn Connection) error {
	if err := t.expect("begin", stateIdle, stateFailed); err != nil {
		return err
	}
	t.state = stateFailed

	// Most of these are fixed values which the loaders ignore or expect
	err := send(conn, command.TypeSpiSetParams.Timeout(), command.SpiSetParams{
		FlashID:    0,
		Size:       t.flashSize.Bytes(),
		BlockSize:  64 * 1024,
		SectorSize: 4 * 1024,
		PageSize:   256,
		StatusMask: 0xffff,
	})
	if err != nil {
		return err
	}

	var attach command.Command = command.SpiAttach{SpiParams: t.spiParams}
	if t.useStub {
		attach = command.SpiAttachStub{SpiParams: t.spiParams}
	}
	err = send(conn, command.TypeSpiAttach.Timeout(), attach)
	if err != nil {
		return err
	}

	pid, err := conn.USBPID()
	if err != nil {
		return err
	}

	if pid == chip.USBSerialJTAGPID {
		for _, w := range t.quirks.Quirks(t.chip) {
			log.Verbosef("WriteReg 0x%08x = 0x%08x\n", w.Address, w.Value)
			_, err = conn.Command(command.WriteReg{
				Address: w.Address,
				Value:   w.Value,
			})
			if err != nil {
				return err
			}
		}
	}

	t.mode = selectMode(t.encrypt, conn.ShouldUseCompression())
	log.Verbosef("Attached to %s, %s flash, %s transfers\n", t.chip, t.flashSize, t.mode)

	t.state = stateAttached

	return nil
}

func (t *Esp32Target) newSegmentWriter(seg Segment, blockSize int) segmentWriter {
	eraseSize := EraseSize(len(seg.Data), t.encrypt)

	switch t.mode {
	case ModeCompressed:
		return &deflateWriter{
			seg:        seg,
			blockSize:  blockSize,
			eraseSize:  eraseSize,
			supportsEn: t.supportsEncryption(),
		}
	default:
		return &plainWriter{
			seg:        seg,
			blockSize:  blockSize,
			eraseSize:  eraseSize,
			supportsEn: t.supportsEncryption(),
			encrypt:    t.encrypt,
			encryptCmd: t.encrypt && (t.chip.IsBaseline() || t.useStub),
		}
	}
}

// WriteSegment erases and writes one segment. 'progress' may be nil.
func (t *Esp32Target) WriteSegment(conn Connection, seg Segment, progress ProgressCallbacks) error {
	if err := t.expect("write segment", stateAttached); err != nil {
		return err
	}
	t.state = stateFailed

	progress = progressOrNop(progress)

	blockSize, err := t.writeSizer.FlashWriteSize(conn)
	if err != nil {
		return err
	} else if blockSize <= 0 {
		return errors.Errorf("invalid flash write size %d", blockSize)
	}

	log.Verbosef("Writing %s (%s, %d byte blocks)\n", seg, t.mode, blockSize)

	w := t.newSegmentWriter(seg, blockSize)

	chunks, err := w.begin(conn)
	if err != nil {
		return err
	}

	t.state = stateStreaming

	numBlocks := chunks.Len()
	progress.Init(seg.Addr, numBlocks)

	for i := 0; i < numBlocks; i++ {
		block, _ := chunks.Next()

		err = w.writeBlock(conn, uint32(i), block, chunks.End(), i == numBlocks-1)
		if err != nil {
			t.state = stateFailed
			return err
		}

		progress.Update(i + 1)
	}

	progress.Finish()

	t.state = stateAttached

	return nil
}

// Finish tells the loader that flashing is done. The end command never
// asks the loader to reboot; if 'reboot' is set the chip is reset through
// the connection instead.
func (t *Esp32Target) Finish(conn Connection, reboot bool) error {
	if err := t.expect("finish", stateAttached); err != nil {
		return err
	}
	t.state = stateFailed

	var end command.Command = command.FlashEnd{Reboot: false}
	if t.mode == ModeCompressed {
		end = command.FlashDeflateEnd{Reboot: false}
	}

	err := send(conn, end.Type().Timeout(), end)
	if err != nil {
		return err
	}

	if reboot {
		err = conn.Reset()
		if err != nil {
			return err
		}
	}

	t.state = stateFinished

	return nil
}
