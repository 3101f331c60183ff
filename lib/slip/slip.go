// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package slip

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

const (
	End    byte = 0xc0
	Esc    byte = 0xdb
	EscEnd byte = 0xdc
	EscEsc byte = 0xdd
)

// Encode wraps 'data' in a SLIP frame, escaping End and Esc bytes.
func Encode(data []byte) []byte {
	frame := make([]byte, 0, len(data)+2)
	frame = append(frame, End)
	for _, b := range data {
		switch b {
		case End:
			frame = append(frame, Esc, EscEnd)
		case Esc:
			frame = append(frame, Esc, EscEsc)
		default:
			frame = append(frame, b)
		}
	}
	return append(frame, End)
}

var badEscapeErr error = errors.New("invalid SLIP escape sequence")

func IsBadEscape(e error) bool {
	return errors.Cause(e) == badEscapeErr
}

// Reader extracts SLIP frames from a byte stream. Bytes outside of a frame
// (e.g. boot messages printed by the ROM) are discarded.
type Reader struct {
	rd *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		rd: bufio.NewReader(r),
	}
}

// ReadFrame returns the next complete, unescaped frame. Empty frames
// (back-to-back End bytes) are skipped.
func (r *Reader) ReadFrame() ([]byte, error) {
	var frame []byte
	inFrame := false
	escaped := false

	for {
		b, err := r.rd.ReadByte()
		if err != nil {
			return nil, err
		}

		if !inFrame {
			if b == End {
				inFrame = true
			}
			continue
		}

		if escaped {
			escaped = false
			switch b {
			case EscEnd:
				frame = append(frame, End)
			case EscEsc:
				frame = append(frame, Esc)
			default:
				return nil, badEscapeErr
			}
			continue
		}

		switch b {
		case End:
			if len(frame) == 0 {
				// Treat as the start of the next frame
				continue
			}
			return frame, nil
		case Esc:
			escaped = true
		default:
			frame = append(frame, b)
		}
	}
}

// Reset drops any buffered input.
func (r *Reader) Reset(rd io.Reader) {
	r.rd.Reset(rd)
}
