// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/chip"
	"go.bug.st/serial/enumerator"
)

type portInfo struct {
	name     string
	vid, pid uint16
	serial   string
}

func (p portInfo) isEspressif() bool {
	return p.vid == chip.EspressifVID
}

func (p portInfo) isUSBSerialJTAG() bool {
	return p.isEspressif() && p.pid == chip.USBSerialJTAGPID
}

// FindPorts lists USB serial ports which could have a chip attached.
func FindPorts() ([]portInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}

	var results []portInfo
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}

		vid, err := strconv.ParseUint(p.VID, 16, 16)
		if err != nil {
			continue
		}
		pid, err := strconv.ParseUint(p.PID, 16, 16)
		if err != nil {
			continue
		}

		results = append(results, portInfo{
			name:   p.Name,
			vid:    uint16(vid),
			pid:    uint16(pid),
			serial: p.SerialNumber,
		})
	}

	return results, nil
}

// defaultPort picks a port when none was given: an Espressif device if
// there's exactly one, otherwise the only USB serial port.
func defaultPort() (string, error) {
	ports, err := FindPorts()
	if err != nil {
		return "", err
	}

	var esp []portInfo
	for _, p := range ports {
		if p.isEspressif() {
			esp = append(esp, p)
		}
	}

	switch {
	case len(esp) == 1:
		return esp[0].name, nil
	case len(ports) == 1:
		return ports[0].name, nil
	case len(ports) == 0:
		return "", errors.New("no USB serial ports found, use --port")
	default:
		return "", errors.New("multiple serial ports found, use --port")
	}
}
