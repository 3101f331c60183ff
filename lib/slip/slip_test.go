// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package slip

import (
	"bytes"
	"io"
	"testing"
)

func TestEncode(t *testing.T) {
	got := Encode([]byte{0x01, End, 0x02, Esc, 0x03})
	exp := []byte{End, 0x01, Esc, EscEnd, 0x02, Esc, EscEsc, 0x03, End}
	if !bytes.Equal(got, exp) {
		t.Errorf("expected % x, got % x", exp, got)
	}
}

func TestRoundTrip(t *testing.T) {
	frames := [][]byte{
		{0x01, 0x08, 0x02, 0x00},
		{End, End, Esc, Esc},
		{Esc, EscEnd, EscEsc, End},
		bytes.Repeat([]byte{0x55}, 300),
	}

	buf := &bytes.Buffer{}
	// Noise before the first frame is dropped
	buf.WriteString("ets Jun  8 2016 00:22:57\r\n")
	for _, f := range frames {
		buf.Write(Encode(f))
	}

	rd := NewReader(buf)
	for i, f := range frames {
		got, err := rd.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, f) {
			t.Errorf("frame %d: expected % x, got % x", i, f, got)
		}
	}

	_, err := rd.ReadFrame()
	if err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestEmptyFrames(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{End, End, End, 0x42, End}))
	got, err := rd.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x42}) {
		t.Errorf("expected 42, got % x", got)
	}
}

func TestBadEscape(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{End, 0x01, Esc, 0x02, End}))
	_, err := rd.ReadFrame()
	if !IsBadEscape(err) {
		t.Errorf("expected bad escape, got %v", err)
	}
}

func TestReset(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{End, 0x01}))
	_, err := rd.ReadFrame()
	if err != io.EOF {
		t.Fatalf("expected EOF for a partial frame, got %v", err)
	}

	rd.Reset(bytes.NewReader(Encode([]byte{0x02})))
	got, err := rd.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x02}) {
		t.Errorf("expected 02, got % x", got)
	}
}
