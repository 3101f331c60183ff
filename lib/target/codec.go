// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package target

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

func compress(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}

	w, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, errors.Wrap(err, "compress segment")
	}

	_, err = w.Write(data)
	if err != nil {
		w.Close()
		return nil, errors.Wrap(err, "compress segment")
	}

	err = w.Close()
	if err != nil {
		return nil, errors.Wrap(err, "compress segment")
	}

	return buf.Bytes(), nil
}

// offsetReader tracks how much of the compressed stream the decompressor
// has pulled. It implements io.ByteReader so that the decompressor reads
// exactly what it needs instead of buffering ahead.
type offsetReader struct {
	data []byte
	off  int
}

func (r *offsetReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func (r *offsetReader) ReadByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// blockDecoder mirrors what the device does with each deflate block: it
// decompresses the stream a block at a time and reports how many bytes
// each block expands to.
type blockDecoder struct {
	src  *offsetReader
	zr   io.ReadCloser
	buf  []byte
	done bool
}

func newBlockDecoder(compressed []byte) (*blockDecoder, error) {
	src := &offsetReader{data: compressed}

	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, errors.Wrap(err, "decompress segment")
	}

	return &blockDecoder{
		src: src,
		zr:  zr,
		buf: make([]byte, 4096),
	}, nil
}

// Decode returns the number of bytes produced by consuming the compressed
// stream up to offset 'end'. Once 'last' is set the rest of the stream is
// drained, so the sum over all blocks is the full decompressed length.
func (d *blockDecoder) Decode(end int, last bool) (int, error) {
	total := 0

	for !d.done && (last || d.src.off < end) {
		n, err := d.zr.Read(d.buf)
		total += n
		if err == io.EOF {
			d.done = true
			d.zr.Close()
		} else if err != nil {
			return total, errors.Wrap(err, "decompress block")
		}
	}

	return total, nil
}
