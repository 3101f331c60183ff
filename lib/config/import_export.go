// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/usedbytes/espflash-go/lib/chip"
	"github.com/usedbytes/espflash-go/lib/target"
	"github.com/usedbytes/log"
)

var crct *crc16.Table = crc16.MakeTable(crc16.CRC16_XMODEM)

// ImageCRC is the checksum used for check_crc.
func ImageCRC(data []byte) uint16 {
	return crc16.Checksum(data, crct)
}

var crcMismatchErr error = errors.New("CRC mismatch")

func IsCRCMismatch(e error) bool {
	return errors.Cause(e) == crcMismatchErr
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) || len(c.dir) == 0 {
		return name
	}
	return filepath.Join(c.dir, name)
}

func (s *Segment) loadData(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		return err
	}

	return s.SetData(data)
}

// SetData sets the segment's data, checking it against CheckCRC.
func (s *Segment) SetData(data []byte) error {
	if s.CheckCRC != 0 {
		crc := ImageCRC(data)
		if crc != s.CheckCRC {
			return errors.Wrapf(crcMismatchErr, "segment 0x%08x: expected 0x%04x, got 0x%04x",
				s.Address, s.CheckCRC, crc)
		}
	}

	s.Data = data

	return nil
}

func (s *Segment) Segment() target.Segment {
	return target.Segment{
		Addr: s.Address,
		Data: s.Data,
	}
}

func (c *Config) LoadData() error {
	for _, seg := range c.Segments {
		err := seg.loadData(c.resolve(seg.DataFile))
		if err != nil {
			return errors.Wrapf(err, "loading %s", seg.DataFile)
		}
		log.Verbosef("Loaded %s: %d bytes for 0x%08x\n", seg.DataFile, len(seg.Data), seg.Address)
	}

	return nil
}

// QuirkTable returns the built-in chip quirks plus the config's watchdog
// entries.
func (c *Config) QuirkTable() (chip.QuirkTable, error) {
	table := chip.DefaultQuirks()
	for _, q := range c.Quirks {
		err := table.Add(q.Chip, chip.Watchdog{
			WriteProtect: q.WriteProtect,
			Config:       q.WdtConfig,
		})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("quirk for %s", q.Chip))
		}
	}

	return table, nil
}

// TargetSegments returns the loaded segments in file order.
func (c *Config) TargetSegments() []target.Segment {
	segs := make([]target.Segment, 0, len(c.Segments))
	for _, s := range c.Segments {
		segs = append(segs, s.Segment())
	}
	return segs
}
