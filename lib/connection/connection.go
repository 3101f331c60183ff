// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"encoding/hex"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/espflash-go/lib/command"
	"github.com/usedbytes/espflash-go/lib/slip"
	"github.com/usedbytes/log"
	"go.bug.st/serial"
)

const (
	DefaultBaud = 115200

	defaultConnectAttempts = 7
	syncAttempts           = 5
	// Logging whole data blocks isn't useful
	maxDumpLen = 64
)

// Port is the subset of serial.Port used by a Connection.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	ResetInputBuffer() error
}

type Options struct {
	// Baud is switched to after connecting. 0 stays at DefaultBaud.
	Baud int
	// UseStub indicates that the flasher stub, not the ROM, is running
	UseStub bool
	// NoCompress disables the deflate commands
	NoCompress bool
	// ProbeUSB scans the USB bus for an Espressif device when the port
	// itself doesn't report a product ID
	ProbeUSB bool
	// ConnectAttempts is the number of reset-and-sync cycles to try
	ConnectAttempts int
}

type Connection struct {
	port     Port
	portName string
	rd       *slip.Reader
	opts     Options

	baud      int
	timeout   time.Duration
	deadline  time.Time
	statusLen int

	pid       uint16
	pidKnown  bool
	pidLookup func() (uint16, error)

	sleep  func(time.Duration)
	closed bool
}

// deadlineReader turns the port's per-read timeout into a deadline for
// the whole response.
type deadlineReader struct {
	c *Connection
}

func (r deadlineReader) Read(p []byte) (int, error) {
	for {
		remaining := time.Until(r.c.deadline)
		if remaining <= 0 {
			return 0, timeoutErr
		}

		err := r.c.port.SetReadTimeout(remaining)
		if err != nil {
			return 0, errors.Wrap(err, "set read timeout")
		}

		n, err := r.c.port.Read(p)
		if err != nil {
			return n, errors.Wrap(err, "serial read")
		} else if n > 0 {
			return n, nil
		}
	}
}

func newConnection(port Port, opts Options) *Connection {
	c := &Connection{
		port:      port,
		opts:      opts,
		baud:      DefaultBaud,
		timeout:   command.DefaultTimeout,
		statusLen: romStatusLen,
		sleep:     time.Sleep,
	}

	if opts.UseStub {
		c.statusLen = stubStatusLen
	}

	c.rd = slip.NewReader(deadlineReader{c: c})
	c.pidLookup = func() (uint16, error) {
		return lookupPID(c.portName, c.opts.ProbeUSB)
	}

	return c
}

// Connect opens 'portName', resets the chip into its bootloader and
// synchronises with it.
func Connect(portName string, opts Options) (*Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: DefaultBaud})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", portName)
	}

	c := newConnection(port, opts)
	c.portName = portName

	err = c.connect()
	if err != nil {
		c.Close()
		return nil, err
	}

	if opts.Baud != 0 && opts.Baud != c.baud {
		err = c.ChangeBaud(opts.Baud)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Connection) connect() error {
	pid, err := c.USBPID()
	if err != nil {
		return err
	}

	attempts := c.opts.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}

	log.Printf("Connecting...")
	for i := 0; i < attempts; i++ {
		err = c.enterBootloader(pid == chip.USBSerialJTAGPID)
		if err != nil {
			log.Printf("\n")
			return err
		}

		for j := 0; j < syncAttempts; j++ {
			err = c.sync()
			if err == nil {
				log.Printf("\n")
				return nil
			}
		}
		log.Printf(".")
	}
	log.Printf("\n")

	return errors.Wrap(err, "couldn't sync with bootloader")
}

func (c *Connection) sync() error {
	err := c.WithTimeout(command.TypeSync.Timeout(), func() error {
		_, err := c.Command(command.Sync{})
		return err
	})
	if err != nil {
		return err
	}

	// The ROM answers a single sync several times; drop the extras
	for i := 0; i < 7; i++ {
		c.deadline = time.Now().Add(command.TypeSync.Timeout())
		_, err = c.rd.ReadFrame()
		if err != nil {
			break
		}
	}

	return nil
}

func (c *Connection) flushInput() error {
	err := c.port.ResetInputBuffer()
	if err != nil {
		return errors.Wrap(err, "flush input")
	}
	c.rd.Reset(deadlineReader{c: c})
	return nil
}

func (c *Connection) transact(cmd command.Command) (*response, error) {
	if c.closed {
		return nil, closedErr
	}

	packet := encodeRequest(cmd)
	if len(packet) > maxDumpLen {
		log.Verbose("Write ", cmd.Type(), " (", len(packet), " bytes)\n", hex.Dump(packet[:maxDumpLen]))
	} else {
		log.Verbose("Write ", cmd.Type(), "\n", hex.Dump(packet))
	}

	frame := slip.Encode(packet)
	n, err := c.port.Write(frame)
	if err != nil {
		return nil, errors.Wrap(err, "serial write")
	} else if n != len(frame) {
		return nil, errors.New("short write")
	}

	c.deadline = time.Now().Add(c.timeout)
	for {
		frame, err := c.rd.ReadFrame()
		if err != nil {
			return nil, err
		}

		log.Verbose("Read\n", hex.Dump(frame))

		resp, err := parseResponse(frame, c.statusLen)
		if err != nil {
			log.Verboseln("Dropping frame:", err)
			continue
		}

		if resp.command != cmd.Type() {
			log.Verboseln("Dropping response to", resp.command)
			continue
		}

		if resp.status != 0 {
			return resp, &CommandError{
				Command: resp.command,
				Status:  resp.status,
				Code:    resp.code,
			}
		}

		return resp, nil
	}
}

// Command sends 'cmd' and returns the value field of the response.
func (c *Connection) Command(cmd command.Command) (uint32, error) {
	resp, err := c.transact(cmd)
	if err != nil {
		return 0, err
	}
	return resp.value, nil
}

// CommandData sends 'cmd' and returns the data section of the response.
func (c *Connection) CommandData(cmd command.Command) ([]byte, error) {
	resp, err := c.transact(cmd)
	if err != nil {
		return nil, err
	}
	return resp.data, nil
}

func (c *Connection) WithTimeout(timeout time.Duration, fn func() error) error {
	prev := c.timeout
	c.timeout = timeout
	defer func() {
		c.timeout = prev
	}()

	return fn()
}

func (c *Connection) ShouldUseCompression() bool {
	return !c.opts.NoCompress
}

func (c *Connection) USBPID() (uint16, error) {
	if c.pidKnown {
		return c.pid, nil
	}

	pid, err := c.pidLookup()
	if err != nil {
		return 0, err
	}

	c.pid = pid
	c.pidKnown = true

	return pid, nil
}

func (c *Connection) ReadReg(addr uint32) (uint32, error) {
	return c.Command(command.ReadReg{Address: addr})
}

func (c *Connection) WriteReg(addr, value uint32) error {
	_, err := c.Command(command.WriteReg{Address: addr, Value: value})
	return err
}

// DetectChip identifies the chip from its ROM magic value.
func (c *Connection) DetectChip() (chip.Chip, error) {
	magic, err := c.ReadReg(chip.MagicRegister)
	if err != nil {
		return chip.Unknown, err
	}

	log.Verbosef("Chip magic: 0x%08x\n", magic)

	return chip.FromMagic(magic)
}

// ChangeBaud switches both ends of the link to 'baud'.
func (c *Connection) ChangeBaud(baud int) error {
	// The ROM ignores the prior rate; the stub needs it
	prior := uint32(0)
	if c.opts.UseStub {
		prior = uint32(c.baud)
	}

	_, err := c.Command(command.ChangeBaudrate{New: uint32(baud), Prior: prior})
	if err != nil {
		return err
	}

	err = c.port.SetMode(&serial.Mode{BaudRate: baud})
	if err != nil {
		return errors.Wrap(err, "set baud rate")
	}

	c.baud = baud
	c.sleep(50 * time.Millisecond)

	return c.flushInput()
}

func (c *Connection) Close() {
	if c.closed {
		return
	}

	c.port.Close()
	c.closed = true
}
