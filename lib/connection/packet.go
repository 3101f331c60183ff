// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/command"
)

const (
	dirRequest  = 0x00
	dirResponse = 0x01

	headerLen = 8

	// The ROM appends status, error and two reserved bytes to each
	// response. The stub only sends status and error.
	romStatusLen  = 4
	stubStatusLen = 2
)

// Request layout:
//   0: direction (0x00)
//   1: command
//   2: payload length, uint16
//   4: checksum, uint32
//   8: payload
func encodeRequest(cmd command.Command) []byte {
	payload := cmd.Payload()

	packet := make([]byte, headerLen, headerLen+len(payload))
	packet[0] = dirRequest
	packet[1] = byte(cmd.Type())
	binary.LittleEndian.PutUint16(packet[2:], uint16(len(payload)))
	binary.LittleEndian.PutUint32(packet[4:], cmd.Checksum())

	return append(packet, payload...)
}

type response struct {
	command command.Type
	value   uint32
	data    []byte
	status  byte
	code    byte
}

// Response layout:
//   0: direction (0x01)
//   1: command
//   2: body length, uint16
//   4: value, uint32
//   8: body (data followed by status bytes)
func parseResponse(frame []byte, statusLen int) (*response, error) {
	if len(frame) < headerLen {
		return nil, errors.Errorf("response too short (%d bytes)", len(frame))
	}

	if frame[0] != dirResponse {
		return nil, errors.Errorf("unexpected direction 0x%02x", frame[0])
	}

	size := int(binary.LittleEndian.Uint16(frame[2:]))
	body := frame[headerLen:]
	if size > len(body) {
		return nil, errors.Errorf("response body truncated (%d of %d bytes)", len(body), size)
	}
	body = body[:size]

	if len(body) < statusLen {
		return nil, errors.Errorf("response missing status (%d bytes)", len(body))
	}

	status := body[len(body)-statusLen:]

	return &response{
		command: command.Type(frame[1]),
		value:   binary.LittleEndian.Uint32(frame[4:]),
		data:    body[:len(body)-statusLen],
		status:  status[0],
		code:    status[1],
	}, nil
}
