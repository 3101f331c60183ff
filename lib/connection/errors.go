// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/command"
)

var closedErr error = errors.New("connection closed")

var timeoutErr error = errors.New("timed out waiting for response")

// IsTimeout reports whether the device failed to answer within the
// command's timeout.
func IsTimeout(e error) bool {
	return errors.Cause(e) == timeoutErr
}

var romErrors = map[byte]string{
	0x05: "invalid message",
	0x06: "failed to act",
	0x07: "invalid CRC",
	0x08: "flash write error",
	0x09: "flash read error",
	0x0a: "flash read length error",
	0x0b: "deflate error",
}

// CommandError is a failure status reported by the loader.
type CommandError struct {
	Command command.Type
	Status  byte
	Code    byte
}

func (e *CommandError) Error() string {
	desc, ok := romErrors[e.Code]
	if !ok {
		desc = "unknown error"
	}
	return fmt.Sprintf("%s failed: status 0x%02x, error 0x%02x (%s)", e.Command, e.Status, e.Code, desc)
}

// AsCommandError returns the CommandError behind 'e', if there is one.
func AsCommandError(e error) (*CommandError, bool) {
	ce, ok := errors.Cause(e).(*CommandError)
	return ce, ok
}
