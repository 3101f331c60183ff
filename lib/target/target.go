// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

import (
	"fmt"
	"time"

	"github.com/usedbytes/espflash-go/lib/command"
)

// Connection is the command transport used to drive the loader.
type Connection interface {
	// Command sends 'cmd' and waits for the matching response, returning
	// its value field.
	Command(cmd command.Command) (uint32, error)
	// WithTimeout runs 'fn' with the response timeout set to 'timeout',
	// restoring the previous timeout afterwards.
	WithTimeout(timeout time.Duration, fn func() error) error
	// ShouldUseCompression reports whether the deflate commands were
	// negotiated for this session.
	ShouldUseCompression() bool
	// USBPID returns the USB product ID of the port, or 0 if it isn't a
	// USB device.
	USBPID() (uint16, error)
	// Reset hard-resets the chip into the application.
	Reset() error
}

// WriteSizer determines the payload size of each flash data block.
type WriteSizer interface {
	FlashWriteSize(conn Connection) (int, error)
}

// Segment is a contiguous run of bytes destined for flash at Addr.
type Segment struct {
	Addr uint32
	Data []byte
}

func (s Segment) String() string {
	return fmt.Sprintf("segment @ 0x%08x, %d bytes", s.Addr, len(s.Data))
}

func send(conn Connection, timeout time.Duration, cmd command.Command) error {
	return conn.WithTimeout(timeout, func() error {
		_, err := conn.Command(cmd)
		return err
	})
}
