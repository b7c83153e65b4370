// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package readctx implements a bounded cursor over an in-memory byte
// slice: fixed-width integer reads with endianness, LEB128 decoding, and
// child-cursor carving. It is the structural building block every other
// validator package reads section bytes through.
package readctx

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a read would advance the cursor past its
// end boundary.
var ErrTruncated = errors.New("readctx: truncated read")

// ErrOverflow is returned by LEB128 decoding when the encoded value needs
// more than 64 bits of payload.
var ErrOverflow = errors.New("readctx: leb128 overflow")

// Ctx is a cursor bounded to data[begin:end] of some parent buffer. begin
// and end are absolute offsets into data so that Offset() always reports
// a position meaningful to the section the cursor was carved from.
type Ctx struct {
	data      []byte
	ptr       int
	begin     int
	end       int
	byteOrder binary.ByteOrder
}

// New builds a root cursor over the whole of data.
func New(data []byte, byteOrder binary.ByteOrder) *Ctx {
	return &Ctx{data: data, ptr: 0, begin: 0, end: len(data), byteOrder: byteOrder}
}

// InitSub constructs a child cursor bounded to [begin,end) within parent.
// begin/end are absolute offsets into the same backing data as parent.
func InitSub(parent *Ctx, begin, end int) (*Ctx, error) {
	if begin < parent.begin || end > parent.end || begin > end {
		return nil, ErrTruncated
	}
	return &Ctx{data: parent.data, ptr: begin, begin: begin, end: end, byteOrder: parent.byteOrder}, nil
}

// Offset reports the cursor's current absolute position.
func (c *Ctx) Offset() int { return c.ptr }

// End reports the cursor's absolute end boundary.
func (c *Ctx) End() int { return c.end }

// EOF reports whether the cursor has consumed every byte in its bound.
func (c *Ctx) EOF() bool { return c.ptr >= c.end }

// NeedData reports whether n more bytes are available before end.
func (c *Ctx) NeedData(n int) bool { return c.ptr+n <= c.end }

// Skip advances the cursor by n bytes, failing with ErrTruncated if doing
// so would pass end.
func (c *Ctx) Skip(n int) error {
	if !c.NeedData(n) {
		return ErrTruncated
	}
	c.ptr += n
	return nil
}

// SeekTo moves the cursor to an absolute offset within its bound.
func (c *Ctx) SeekTo(off int) error {
	if off < c.begin || off > c.end {
		return ErrTruncated
	}
	c.ptr = off
	return nil
}

func (c *Ctx) take(n int) ([]byte, error) {
	if !c.NeedData(n) {
		return nil, ErrTruncated
	}
	b := c.data[c.ptr : c.ptr+n]
	c.ptr += n
	return b, nil
}

// ReadUByte reads one unsigned byte.
func (c *Ctx) ReadUByte() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read2UByte reads a little/big-endian uint16 per the cursor's byte order.
func (c *Ctx) Read2UByte() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return c.byteOrder.Uint16(b), nil
}

// Read4UByte reads a uint32.
func (c *Ctx) Read4UByte() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return c.byteOrder.Uint32(b), nil
}

// Read8UByte reads a uint64.
func (c *Ctx) Read8UByte() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return c.byteOrder.Uint64(b), nil
}

// ReadOffset reads a 4- or 8-byte offset/address depending on is64.
func (c *Ctx) ReadOffset(is64 bool) (uint64, error) {
	if is64 {
		return c.Read8UByte()
	}
	v, err := c.Read4UByte()
	return uint64(v), err
}

// ReadULEB128 decodes an unsigned LEB128 value.
func (c *Ctx) ReadULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := c.ReadUByte()
		if err != nil {
			return 0, ErrTruncated
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadSLEB128 decodes a signed LEB128 value.
func (c *Ctx) ReadSLEB128() (int64, error) {
	var result int64
	var shift uint
	var b uint8
	var err error
	for {
		b, err = c.ReadUByte()
		if err != nil {
			return 0, ErrTruncated
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && (b&0x40) != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// ReadBytes reads n raw bytes.
func (c *Ctx) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

// Bytes returns the full backing slice the cursor was built over, for
// callers that need to inspect raw section contents by absolute offset.
func (c *Ctx) Bytes() []byte { return c.data }
