// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

// BlockCount is the number of 'size' blocks needed to hold 'n' bytes.
func BlockCount(n, size int) int {
	return (n + size - 1) / size
}

// Chunks walks a buffer in fixed-size blocks. The last block may be
// short. Blocks alias the underlying buffer.
type Chunks struct {
	data []byte
	size int
	pos  int
}

func NewChunks(data []byte, size int) *Chunks {
	if size <= 0 {
		panic("chunk size must be positive")
	}
	return &Chunks{
		data: data,
		size: size,
	}
}

// Len is the total number of blocks, regardless of how many have been
// returned by Next.
func (c *Chunks) Len() int {
	return BlockCount(len(c.data), c.size)
}

func (c *Chunks) Next() ([]byte, bool) {
	if c.pos >= len(c.data) {
		return nil, false
	}

	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}

	block := c.data[c.pos:end]
	c.pos = end

	return block, true
}

// End is the offset just past the last block returned by Next.
func (c *Chunks) End() int {
	return c.pos
}

func (c *Chunks) Reset() {
	c.pos = 0
}
