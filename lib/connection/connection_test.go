// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/espflash-go/lib/command"
	"github.com/usedbytes/espflash-go/lib/slip"
	"go.bug.st/serial"
)

type fakePort struct {
	in       bytes.Buffer
	requests [][]byte
	respond  func(req []byte) [][]byte

	lines       []string
	readTimeout time.Duration
	mode        *serial.Mode
	flushes     int
	closed      bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	req, err := slip.NewReader(bytes.NewReader(b)).ReadFrame()
	if err != nil {
		return 0, err
	}
	p.requests = append(p.requests, req)

	if p.respond != nil {
		for _, r := range p.respond(req) {
			p.in.Write(slip.Encode(r))
		}
	}

	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.in.Len() == 0 {
		wait := p.readTimeout
		if wait > 2*time.Millisecond {
			wait = 2 * time.Millisecond
		}
		time.Sleep(wait)
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetMode(mode *serial.Mode) error {
	p.mode = mode
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

func (p *fakePort) SetDTR(dtr bool) error {
	p.lines = append(p.lines, fmt.Sprintf("dtr=%v", dtr))
	return nil
}

func (p *fakePort) SetRTS(rts bool) error {
	p.lines = append(p.lines, fmt.Sprintf("rts=%v", rts))
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.in.Reset()
	p.flushes++
	return nil
}

func respFrame(op command.Type, value uint32, data []byte, status []byte) []byte {
	body := append(append([]byte{}, data...), status...)
	frame := make([]byte, 8, 8+len(body))
	frame[0] = 0x01
	frame[1] = byte(op)
	binary.LittleEndian.PutUint16(frame[2:], uint16(len(body)))
	binary.LittleEndian.PutUint32(frame[4:], value)
	return append(frame, body...)
}

var romOK = []byte{0, 0, 0, 0}

func newTestConnection(port *fakePort, opts Options) (*Connection, *[]time.Duration) {
	c := newConnection(port, opts)
	c.pidLookup = func() (uint16, error) { return 0, nil }

	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}

	return c, sleeps
}

func TestCommand(t *testing.T) {
	port := &fakePort{
		respond: func(req []byte) [][]byte {
			return [][]byte{respFrame(command.Type(req[1]), 0x6921506f, nil, romOK)}
		},
	}
	c, _ := newTestConnection(port, Options{})

	got, err := c.DetectChip()
	if err != nil {
		t.Fatal(err)
	}
	if got != chip.Esp32c3 {
		t.Errorf("expected esp32c3, got %s", got)
	}

	exp := encodeRequest(command.ReadReg{Address: chip.MagicRegister})
	if len(port.requests) != 1 || !bytes.Equal(port.requests[0], exp) {
		t.Errorf("expected request % x, got % x", exp, port.requests)
	}
}

func TestEncodeRequest(t *testing.T) {
	cmd := command.FlashData{Block: command.Block{Sequence: 2, Data: []byte{0xaa, 0xbb}}}
	pkt := encodeRequest(cmd)

	exp := []byte{
		0x00, 0x03, 0x12, 0x00,
		0xef ^ 0xaa ^ 0xbb, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xaa, 0xbb,
	}
	if !bytes.Equal(pkt, exp) {
		t.Errorf("expected % x, got % x", exp, pkt)
	}
}

func TestCommandError(t *testing.T) {
	port := &fakePort{
		respond: func(req []byte) [][]byte {
			return [][]byte{respFrame(command.Type(req[1]), 0, nil, []byte{1, 0x05, 0, 0})}
		},
	}
	c, _ := newTestConnection(port, Options{})

	err := c.WriteReg(0x1000, 1)
	ce, ok := AsCommandError(err)
	if !ok {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if ce.Command != command.TypeWriteReg || ce.Status != 1 || ce.Code != 0x05 {
		t.Errorf("unexpected error %+v", ce)
	}
	if !strings.Contains(err.Error(), "invalid message") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestStubStatus(t *testing.T) {
	digest := bytes.Repeat([]byte{0x5a}, 16)
	port := &fakePort{
		respond: func(req []byte) [][]byte {
			return [][]byte{respFrame(command.Type(req[1]), 0, digest, []byte{0, 0})}
		},
	}
	c, _ := newTestConnection(port, Options{UseStub: true})

	data, err := c.CommandData(command.FlashMd5{Offset: 0, Size: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, digest) {
		t.Errorf("expected % x, got % x", digest, data)
	}
}

func TestDropsUnrelatedFrames(t *testing.T) {
	port := &fakePort{
		respond: func(req []byte) [][]byte {
			op := command.Type(req[1])
			return [][]byte{
				// Echoed request
				req,
				// Truncated
				{0x01, byte(op), 0x10, 0x00},
				// Late answer to something else
				respFrame(command.TypeSync, 0, nil, romOK),
				respFrame(op, 42, nil, romOK),
			}
		},
	}
	c, _ := newTestConnection(port, Options{})

	val, err := c.ReadReg(0x3ff00000)
	if err != nil {
		t.Fatal(err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestTimeout(t *testing.T) {
	port := &fakePort{}
	c, _ := newTestConnection(port, Options{})

	start := time.Now()
	err := c.WithTimeout(20*time.Millisecond, func() error {
		_, err := c.Command(command.ReadReg{Address: 0})
		return err
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("short timeout wasn't honoured")
	}

	if c.timeout != command.DefaultTimeout {
		t.Errorf("timeout not restored: %v", c.timeout)
	}
}

func TestClosed(t *testing.T) {
	port := &fakePort{}
	c, _ := newTestConnection(port, Options{})

	c.Close()
	if !port.closed {
		t.Error("port not closed")
	}

	_, err := c.Command(command.Sync{})
	if err == nil {
		t.Error("expected error on closed connection")
	}
	if err = c.Reset(); err == nil {
		t.Error("expected reset to fail on closed connection")
	}
}

func TestConnect(t *testing.T) {
	cases := []struct {
		name  string
		pid   uint16
		lines []lineState
	}{
		{"uart bridge", 0xea60, classicReset},
		{"usb-serial-jtag", chip.USBSerialJTAGPID, usbJTAGReset},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			port := &fakePort{
				respond: func(req []byte) [][]byte {
					var frames [][]byte
					// The ROM answers each sync eight times
					for i := 0; i < 8; i++ {
						frames = append(frames, respFrame(command.TypeSync, 0, nil, romOK))
					}
					return frames
				},
			}
			c, sleeps := newTestConnection(port, Options{})
			c.pidLookup = func() (uint16, error) { return tc.pid, nil }

			err := c.connect()
			if err != nil {
				t.Fatal(err)
			}

			var expLines []string
			var expSleeps []time.Duration
			for _, l := range tc.lines {
				expLines = append(expLines, fmt.Sprintf("dtr=%v", l.dtr), fmt.Sprintf("rts=%v", l.rts))
				if l.hold > 0 {
					expSleeps = append(expSleeps, l.hold)
				}
			}
			if fmt.Sprint(port.lines) != fmt.Sprint(expLines) {
				t.Errorf("expected lines %v, got %v", expLines, port.lines)
			}
			if fmt.Sprint(*sleeps) != fmt.Sprint(expSleeps) {
				t.Errorf("expected sleeps %v, got %v", expSleeps, *sleeps)
			}

			if len(port.requests) != 1 || port.requests[0][1] != byte(command.TypeSync) {
				t.Errorf("expected a single sync, got %d requests", len(port.requests))
			}
			if port.in.Len() != 0 {
				t.Errorf("%d bytes of sync responses left over", port.in.Len())
			}
		})
	}
}

func TestReset(t *testing.T) {
	port := &fakePort{}
	c, sleeps := newTestConnection(port, Options{})

	err := c.Reset()
	if err != nil {
		t.Fatal(err)
	}

	exp := []string{"dtr=false", "rts=true", "dtr=false", "rts=false"}
	if fmt.Sprint(port.lines) != fmt.Sprint(exp) {
		t.Errorf("expected %v, got %v", exp, port.lines)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 100*time.Millisecond {
		t.Errorf("unexpected sleeps %v", *sleeps)
	}
}

func TestChangeBaud(t *testing.T) {
	cases := []struct {
		useStub bool
		prior   uint32
	}{
		{false, 0},
		{true, DefaultBaud},
	}

	for _, tc := range cases {
		status := romOK
		if tc.useStub {
			status = []byte{0, 0}
		}

		port := &fakePort{
			respond: func(req []byte) [][]byte {
				return [][]byte{respFrame(command.Type(req[1]), 0, nil, status)}
			},
		}
		c, _ := newTestConnection(port, Options{UseStub: tc.useStub})

		err := c.ChangeBaud(921600)
		if err != nil {
			t.Fatal(err)
		}

		exp := encodeRequest(command.ChangeBaudrate{New: 921600, Prior: tc.prior})
		if !bytes.Equal(port.requests[0], exp) {
			t.Errorf("stub=%v: expected % x, got % x", tc.useStub, exp, port.requests[0])
		}
		if port.mode == nil || port.mode.BaudRate != 921600 {
			t.Errorf("stub=%v: port mode %+v", tc.useStub, port.mode)
		}
		if port.flushes != 1 {
			t.Errorf("stub=%v: expected input flush", tc.useStub)
		}
	}
}

func TestUSBPIDCached(t *testing.T) {
	port := &fakePort{}
	c, _ := newTestConnection(port, Options{})

	calls := 0
	c.pidLookup = func() (uint16, error) {
		calls++
		return chip.USBSerialJTAGPID, nil
	}

	for i := 0; i < 3; i++ {
		pid, err := c.USBPID()
		if err != nil {
			t.Fatal(err)
		}
		if pid != chip.USBSerialJTAGPID {
			t.Errorf("expected 0x1001, got 0x%04x", pid)
		}
	}
	if calls != 1 {
		t.Errorf("expected one lookup, got %d", calls)
	}
}

func TestParseResponse(t *testing.T) {
	_, err := parseResponse([]byte{0x01, 0x08, 0x00}, romStatusLen)
	if err == nil {
		t.Error("expected error for short frame")
	}

	_, err = parseResponse(respFrame(command.TypeSync, 0, nil, []byte{0, 0}), romStatusLen)
	if err == nil {
		t.Error("expected error for missing status")
	}

	resp, err := parseResponse(respFrame(command.TypeReadReg, 7, []byte{1, 2}, romOK), romStatusLen)
	if err != nil {
		t.Fatal(err)
	}
	if resp.value != 7 || !bytes.Equal(resp.data, []byte{1, 2}) || resp.status != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
}
