// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/espflash-go/lib/command"
	"github.com/usedbytes/espflash-go/lib/config"
	"github.com/usedbytes/espflash-go/lib/connection"
	"github.com/usedbytes/espflash-go/lib/target"
	"github.com/usedbytes/log"
)

// loadConfig returns the config file named by --config, or an empty
// config, with any flags which were set on the command line applied
// over the top.
func loadConfig(ctx *cli.Context, filename string) (*config.Config, error) {
	cfg := &config.Config{}
	if len(filename) != 0 {
		var err error
		cfg, err = config.LoadConfig(filename)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Connection == nil {
		cfg.Connection = &config.Connection{}
	}
	if cfg.Target == nil {
		cfg.Target = &config.Target{FlashSize: chip.Flash4Mb}
	}

	if ctx.IsSet("port") {
		cfg.Connection.Port = ctx.String("port")
	}
	if ctx.IsSet("baud") {
		cfg.Connection.Baud = ctx.Int("baud")
	}
	if ctx.IsSet("no-compress") {
		cfg.Connection.NoCompress = ctx.Bool("no-compress")
	}
	if ctx.IsSet("probe-usb") {
		cfg.Connection.ProbeUSB = ctx.Bool("probe-usb")
	}

	if ctx.IsSet("chip") {
		c, err := chip.ParseChip(ctx.String("chip"))
		if err != nil {
			return nil, err
		}
		cfg.Target.Chip = c
	}
	if ctx.IsSet("flash-size") {
		fs, err := chip.ParseFlashSize(ctx.String("flash-size"))
		if err != nil {
			return nil, err
		}
		cfg.Target.FlashSize = fs
	}
	if ctx.IsSet("stub") {
		cfg.Target.UseStub = ctx.Bool("stub")
	}
	if ctx.IsSet("encrypt") {
		cfg.Target.Encrypt = ctx.Bool("encrypt")
	}
	if ctx.IsSet("verify") {
		cfg.Target.Verify = ctx.Bool("verify")
	}

	if cfg.Target.Verify && cfg.Target.Encrypt {
		log.Println("Skipping verification: encrypted flash can't be compared with the input files")
	}

	return cfg, nil
}

func connect(cfg *config.Config) (*connection.Connection, chip.Chip, error) {
	port := cfg.Connection.Port
	if len(port) == 0 {
		var err error
		port, err = defaultPort()
		if err != nil {
			return nil, chip.Unknown, err
		}
	}

	log.Println("Serial port:", port)

	conn, err := connection.Connect(port, connection.Options{
		Baud:       cfg.Connection.Baud,
		UseStub:    cfg.Target.UseStub,
		NoCompress: cfg.Connection.NoCompress,
		ProbeUSB:   cfg.Connection.ProbeUSB,
	})
	if err != nil {
		return nil, chip.Unknown, err
	}

	detected, err := conn.DetectChip()
	if err != nil {
		conn.Close()
		return nil, chip.Unknown, err
	}

	c := cfg.Target.Chip
	if c == chip.Unknown {
		c = detected
	} else if c != detected {
		conn.Close()
		return nil, chip.Unknown, fmt.Errorf("chip is %s, but %s was requested", detected, c)
	}

	log.Println("Chip:", c)

	return conn, c, nil
}

func flashSegments(ctx *cli.Context, cfg *config.Config, segs []target.Segment) error {
	conn, c, err := connect(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	quirks, err := cfg.QuirkTable()
	if err != nil {
		return err
	}

	t := target.NewEsp32Target(c, command.SpiAttachParams{}, cfg.Target.FlashSize,
		cfg.Target.UseStub, cfg.Target.Encrypt, target.WithQuirks(quirks))

	err = t.Begin(conn)
	if err != nil {
		return errors.Wrap(err, "begin")
	}

	progress := &barProgress{}
	for _, seg := range segs {
		err = t.WriteSegment(conn, seg, progress)
		if err != nil {
			progress.Abort()
			return errors.Wrapf(err, "writing %s", seg)
		}

		if cfg.Target.ShouldVerify() {
			log.Printf("Verifying 0x%08x... ", seg.Addr)
			err = target.VerifySegment(conn, seg)
			if err != nil {
				log.Printf("\n")
				return err
			}
			log.Println("OK")
		}
	}

	err = t.Finish(conn, !ctx.Bool("no-reboot"))
	if err != nil {
		return errors.Wrap(err, "finish")
	}

	log.Println("Done!")

	return nil
}

func writeBinAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("ADDRESS and INPUT_FILE are required")
	}

	addr, err := strconv.ParseUint(ctx.Args().Get(0), 0, 32)
	if err != nil {
		return errors.Wrap(err, "parsing ADDRESS")
	}

	data, err := ioutil.ReadFile(ctx.Args().Get(1))
	if err != nil {
		return errors.Wrap(err, "reading input file")
	}

	cfg, err := loadConfig(ctx, ctx.String("config"))
	if err != nil {
		return err
	}

	seg := &config.Segment{
		Address:  uint32(addr),
		DataFile: ctx.Args().Get(1),
	}
	if ctx.IsSet("crc") {
		seg.CheckCRC = uint16(ctx.Uint("crc"))
	}

	err = seg.SetData(data)
	if err != nil {
		return err
	}

	return flashSegments(ctx, cfg, []target.Segment{seg.Segment()})
}

func flashAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("CONFIG_FILE is required")
	}

	cfg, err := loadConfig(ctx, ctx.Args().First())
	if err != nil {
		return err
	}

	if len(cfg.Segments) == 0 {
		return errors.New("no segments in config")
	}

	log.Verboseln(cfg)

	return flashSegments(ctx, cfg, cfg.TargetSegments())
}

func boardInfoAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx, ctx.String("config"))
	if err != nil {
		return err
	}

	conn, c, err := connect(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	pid, err := conn.USBPID()
	if err != nil {
		return err
	}

	quirks, err := cfg.QuirkTable()
	if err != nil {
		return err
	}

	fmt.Printf("Chip:          %s\n", c)
	fmt.Printf("USB PID:       0x%04x\n", pid)
	fmt.Printf("Block size:    0x%x\n", c.FlashWriteSize(cfg.Target.UseStub))
	fmt.Printf("WDT quirk:     %v\n", quirks.Quirks(c) != nil)

	return nil
}

func listPortsAction(ctx *cli.Context) error {
	ports, err := FindPorts()
	if err != nil {
		return err
	}

	for _, p := range ports {
		desc := ""
		if p.isUSBSerialJTAG() {
			desc = " (USB-Serial-JTAG)"
		} else if p.isEspressif() {
			desc = " (Espressif)"
		}
		fmt.Printf("%s %04x:%04x %s%s\n", p.name, p.vid, p.pid, p.serial, desc)
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:  "espflash",
		Usage: "A tool for writing firmware to ESP32-family chips",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable more output",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Serial port the chip is attached to",
				EnvVars: []string{"ESPFLASH_PORT"},
			},
			&cli.IntFlag{
				Name:    "baud",
				Aliases: []string{"b"},
				Usage:   "Baud rate to switch to after connecting",
			},
			&cli.StringFlag{
				Name:    "chip",
				Aliases: []string{"c"},
				Usage:   "Expected chip (detected if not set)",
			},
			&cli.StringFlag{
				Name:    "flash-size",
				Aliases: []string{"s"},
				Usage:   "Flash size, e.g. 4MB",
				Value:   "4MB",
			},
			&cli.BoolFlag{
				Name:  "stub",
				Usage: "The flasher stub is already running",
			},
			&cli.BoolFlag{
				Name:  "encrypt",
				Usage: "Encrypt data as it is written",
			},
			&cli.BoolFlag{
				Name:  "no-compress",
				Usage: "Don't use compressed transfers",
			},
			&cli.BoolFlag{
				Name:  "probe-usb",
				Usage: "Scan the USB bus if the port doesn't report a USB product ID",
			},
		},
	}

	writeFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-reboot",
			Usage: "Leave the chip in the bootloader when done",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "Check the flash MD5 after writing each segment",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "board-info",
			Usage:  "Connect and print chip information",
			Action: boardInfoAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "config",
					Usage: "Config file with connection settings",
				},
			},
		},
		{
			Name:   "list-ports",
			Usage:  "List USB serial ports",
			Action: listPortsAction,
		},
		{
			Name:      "write-bin",
			Usage:     "Write a binary image to flash",
			ArgsUsage: "ADDRESS INPUT_FILE",
			Action:    writeBinAction,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "config",
					Usage: "Config file with connection settings",
				},
				&cli.UintFlag{
					Name:  "crc",
					Usage: "Expected CRC16/XMODEM of INPUT_FILE",
				},
			}, writeFlags...),
		},
		{
			Name:      "flash",
			Usage:     "Write all the segments listed in a config file",
			ArgsUsage: "CONFIG_FILE",
			Action:    flashAction,
			Flags:     writeFlags,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
