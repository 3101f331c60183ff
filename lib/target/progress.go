// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

// ProgressCallbacks receives per-segment progress. Init is called once with
// the total number of blocks, Update after each block with the number of
// blocks sent so far, and Finish only if the whole segment was written.
type ProgressCallbacks interface {
	Init(addr uint32, total int)
	Update(current int)
	Finish()
}

type noProgress struct{}

func (noProgress) Init(addr uint32, total int) {}
func (noProgress) Update(current int)          {}
func (noProgress) Finish()                     {}

func progressOrNop(p ProgressCallbacks) ProgressCallbacks {
	if p == nil {
		return noProgress{}
	}
	return p
}
