// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package readctx

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWidthReads(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	c := New(data, binary.LittleEndian)

	b, err := c.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), b)

	u16, err := c.Read2UByte()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := c.Read4UByte()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0706_0504), u32)
}

func TestReadPastEndTruncates(t *testing.T) {
	c := New([]byte{0x01, 0x02}, binary.LittleEndian)
	_, err := c.Read4UByte()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestULEB128(t *testing.T) {
	// 624485 encodes to 0xE5 0x8E 0x26 (DWARF spec example).
	c := New([]byte{0xE5, 0x8E, 0x26}, binary.LittleEndian)
	v, err := c.ReadULEB128()
	require.NoError(t, err)
	assert.Equal(t, uint64(624485), v)
}

func TestSLEB128Negative(t *testing.T) {
	// -2 encodes to 0x7E per the DWARF spec's worked examples.
	c := New([]byte{0x7E}, binary.LittleEndian)
	v, err := c.ReadSLEB128()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)
}

func TestInitSubBounds(t *testing.T) {
	parent := New([]byte{0, 1, 2, 3, 4, 5}, binary.LittleEndian)
	child, err := InitSub(parent, 2, 4)
	require.NoError(t, err)
	b, err := child.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), b)
	assert.True(t, child.NeedData(1))
	assert.False(t, child.NeedData(2))

	_, err = InitSub(parent, 4, 10)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSkipAndEOF(t *testing.T) {
	c := New([]byte{1, 2, 3}, binary.LittleEndian)
	require.NoError(t, c.Skip(3))
	assert.True(t, c.EOF())
	assert.ErrorIs(t, c.Skip(1), ErrTruncated)
}
