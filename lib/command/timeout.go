// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package command

import "time"

const (
	DefaultTimeout = 3 * time.Second

	syncTimeout             = 100 * time.Millisecond
	eraseRegionTimeoutPerMB = 30 * time.Second
	eraseWriteTimeoutPerMB  = 40 * time.Second
	md5TimeoutPerMB         = 8 * time.Second
)

// Timeout is the wait budget for a command whose duration doesn't depend
// on how much data it touches.
func (t Type) Timeout() time.Duration {
	switch t {
	case TypeSync:
		return syncTimeout
	default:
		return DefaultTimeout
	}
}

func scaled(perMB time.Duration, size uint32) time.Duration {
	mb := float64(size) / 1e6
	d := time.Duration(float64(perMB) * mb)
	if d < DefaultTimeout {
		return DefaultTimeout
	}
	return d
}

// TimeoutForSize is the wait budget for a command which erases or writes
// 'size' bytes of flash. Commands not affected by size fall back to
// Timeout().
func (t Type) TimeoutForSize(size uint32) time.Duration {
	switch t {
	case TypeFlashBegin, TypeFlashDeflateBegin:
		return scaled(eraseRegionTimeoutPerMB, size)
	case TypeFlashData, TypeFlashDeflateData, TypeFlashEncryptData:
		return scaled(eraseWriteTimeoutPerMB, size)
	case TypeFlashMd5:
		return scaled(md5TimeoutPerMB, size)
	default:
		return t.Timeout()
	}
}
