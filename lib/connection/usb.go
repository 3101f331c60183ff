// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package connection

import (
	"strconv"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/log"
	"go.bug.st/serial/enumerator"
)

// portPID finds the USB product ID of a serial port by name. 'ok' is false
// if the port isn't listed or isn't a USB device.
func portPID(name string) (pid uint16, ok bool, err error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return 0, false, errors.Wrap(err, "list serial ports")
	}

	for _, p := range ports {
		if p.Name != name || !p.IsUSB {
			continue
		}

		val, err := strconv.ParseUint(p.PID, 16, 16)
		if err != nil {
			return 0, false, errors.Wrapf(err, "parse PID '%s'", p.PID)
		}

		log.Verbosef("Port %s is USB %s:%s\n", name, p.VID, p.PID)
		return uint16(val), true, nil
	}

	return 0, false, nil
}

// probeUSBPID scans the bus for devices with vendor 'vid'. It only gives
// an answer if there's exactly one, otherwise we can't tell which is ours.
func probeUSBPID(vid uint16) (uint16, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var pids []gousb.ID
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == gousb.ID(vid) {
			pids = append(pids, desc.Product)
		}
		// Only the descriptor is needed
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return 0, errors.Wrap(err, "scan USB devices")
	}

	log.Verbosef("Found %d USB devices with VID %04x\n", len(pids), vid)

	if len(pids) != 1 {
		return 0, nil
	}

	return uint16(pids[0]), nil
}

func lookupPID(name string, probe bool) (uint16, error) {
	if len(name) != 0 {
		pid, ok, err := portPID(name)
		if err != nil {
			return 0, err
		} else if ok {
			return pid, nil
		}
	}

	if probe {
		return probeUSBPID(chip.EspressifVID)
	}

	return 0, nil
}
