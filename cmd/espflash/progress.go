// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"

	"github.com/cheggaaa/pb/v3"
)

// barProgress shows a progress bar per segment.
type barProgress struct {
	bar *pb.ProgressBar
}

func (p *barProgress) Init(addr uint32, total int) {
	p.bar = pb.Full.Start(total)
	p.bar.Set("prefix", fmt.Sprintf("0x%08x ", addr))
}

func (p *barProgress) Update(current int) {
	p.bar.SetCurrent(int64(current))
}

func (p *barProgress) Finish() {
	p.bar.Finish()
	p.bar = nil
}

// Abort stops a bar left running by a failed segment, so the error
// message isn't mixed up with it.
func (p *barProgress) Abort() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
