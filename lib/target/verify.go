// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/usedbytes/espflash-go/lib/command"
	"github.com/usedbytes/log"
)

// DataConnection can return the data section of a response as well as
// its value.
type DataConnection interface {
	Connection
	CommandData(cmd command.Command) ([]byte, error)
}

var digestMismatchErr error = errors.New("flash digest mismatch")

func IsDigestMismatch(e error) bool {
	return errors.Cause(e) == digestMismatchErr
}

// The ROM returns the digest as 32 ASCII hex characters, the stub as 16
// raw bytes.
func parseDigest(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 32:
		digest := make([]byte, 16)
		_, err := hex.Decode(digest, data[:32])
		if err != nil {
			return nil, errors.Wrap(err, "parse flash digest")
		}
		return digest, nil
	case len(data) >= 16:
		return data[:16], nil
	default:
		return nil, errors.Errorf("flash digest too short (%d bytes)", len(data))
	}
}

// VerifySegment asks the loader for the MD5 of the flash region covered by
// 'seg' and compares it with the segment's data.
func VerifySegment(conn DataConnection, seg Segment) error {
	size := uint32(len(seg.Data))
	cmd := command.FlashMd5{Offset: seg.Addr, Size: size}

	var data []byte
	err := conn.WithTimeout(cmd.Type().TimeoutForSize(size), func() error {
		var err error
		data, err = conn.CommandData(cmd)
		return err
	})
	if err != nil {
		return err
	}

	got, err := parseDigest(data)
	if err != nil {
		return err
	}

	expected := md5.Sum(seg.Data)
	log.Verbosef("Flash MD5 @ 0x%08x: %x (expected %x)\n", seg.Addr, got, expected)

	if !bytes.Equal(got, expected[:]) {
		return errors.Wrapf(digestMismatchErr, "%s", seg)
	}

	return nil
}
