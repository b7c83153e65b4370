// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package dwarfmodel

import (
	"fmt"

	"github.com/wf-tools/dwarflint/go/readctx"
)

// DWARF attribute names this package cares about. Only the handful
// needed to discover low_pc and .debug_loc/.debug_ranges references are
// named; everything else is read generically by form and discarded.
const (
	dwAtLowPC    = 0x11
	dwAtLocation = 0x02
	dwAtRanges   = 0x55
)

// DWARF2-4 form codes (DWARF5-only forms such as strx/rnglistx are out of
// scope: the validator this repository implements predates DWARF5, same
// as the original it's ported from).
const (
	dwFormAddr     = 0x01
	dwFormBlock2   = 0x03
	dwFormBlock4   = 0x04
	dwFormData2    = 0x05
	dwFormData4    = 0x06
	dwFormData8    = 0x07
	dwFormString   = 0x08
	dwFormBlock    = 0x09
	dwFormBlock1   = 0x0a
	dwFormData1    = 0x0b
	dwFormFlag     = 0x0c
	dwFormSdata    = 0x0d
	dwFormStrp     = 0x0e
	dwFormUdata    = 0x0f
	dwFormRefAddr  = 0x10
	dwFormRef1     = 0x11
	dwFormRef2     = 0x12
	dwFormRef4     = 0x13
	dwFormRef8     = 0x14
	dwFormRefUdata = 0x15
	dwFormIndirect = 0x16
	dwFormSecOff   = 0x17
	dwFormExprloc  = 0x18
	dwFormFlagPres = 0x19
)

// formValue is the decoded payload of one attribute, scalar forms only;
// block/string forms are skipped and reported with IsBlock/IsString set
// since the CU scanner never needs their contents.
type formValue struct {
	Scalar   uint64
	IsBlock  bool
	IsString bool
}

// readForm decodes one attribute value per form, consuming exactly the
// bytes that form occupies. addrSize and offsetSize come from the owning
// CU header.
func readForm(ctx *readctx.Ctx, form uint64, addrSize, offsetSize int) (formValue, error) {
	switch form {
	case dwFormAddr:
		v, err := readSized(ctx, addrSize)
		return formValue{Scalar: v}, err
	case dwFormData1, dwFormRef1:
		v, err := ctx.ReadUByte()
		return formValue{Scalar: uint64(v)}, err
	case dwFormData2, dwFormRef2:
		v, err := ctx.Read2UByte()
		return formValue{Scalar: uint64(v)}, err
	case dwFormData4, dwFormRef4:
		v, err := ctx.Read4UByte()
		return formValue{Scalar: uint64(v)}, err
	case dwFormData8, dwFormRef8:
		v, err := ctx.Read8UByte()
		return formValue{Scalar: v}, err
	case dwFormSecOff, dwFormStrp, dwFormRefAddr:
		v, err := ctx.ReadOffset(offsetSize == 8)
		return formValue{Scalar: v}, err
	case dwFormSdata:
		v, err := ctx.ReadSLEB128()
		return formValue{Scalar: uint64(v)}, err
	case dwFormUdata, dwFormRefUdata:
		v, err := ctx.ReadULEB128()
		return formValue{Scalar: v}, err
	case dwFormFlag:
		v, err := ctx.ReadUByte()
		return formValue{Scalar: uint64(v)}, err
	case dwFormFlagPres:
		return formValue{Scalar: 1}, nil
	case dwFormString:
		if err := skipCString(ctx); err != nil {
			return formValue{}, err
		}
		return formValue{IsString: true}, nil
	case dwFormBlock1:
		n, err := ctx.ReadUByte()
		if err != nil {
			return formValue{}, err
		}
		return formValue{IsBlock: true}, ctx.Skip(int(n))
	case dwFormBlock2:
		n, err := ctx.Read2UByte()
		if err != nil {
			return formValue{}, err
		}
		return formValue{IsBlock: true}, ctx.Skip(int(n))
	case dwFormBlock4:
		n, err := ctx.Read4UByte()
		if err != nil {
			return formValue{}, err
		}
		return formValue{IsBlock: true}, ctx.Skip(int(n))
	case dwFormBlock, dwFormExprloc:
		n, err := ctx.ReadULEB128()
		if err != nil {
			return formValue{}, err
		}
		return formValue{IsBlock: true}, ctx.Skip(int(n))
	case dwFormIndirect:
		inner, err := ctx.ReadULEB128()
		if err != nil {
			return formValue{}, err
		}
		return readForm(ctx, inner, addrSize, offsetSize)
	default:
		return formValue{}, fmt.Errorf("dwarfmodel: unsupported DW_FORM %#x", form)
	}
}

func readSized(ctx *readctx.Ctx, size int) (uint64, error) {
	switch size {
	case 4:
		v, err := ctx.Read4UByte()
		return uint64(v), err
	case 8:
		return ctx.Read8UByte()
	default:
		return 0, fmt.Errorf("dwarfmodel: unsupported address size %d", size)
	}
}

func skipCString(ctx *readctx.Ctx) error {
	for {
		b, err := ctx.ReadUByte()
		if err != nil {
			return err
		}
		if b == 0 {
			return nil
		}
	}
}

// isLocSecOffsetForm reports whether form, applied to DW_AT_location,
// means "offset into .debug_loc" rather than an inline DW_FORM_exprloc.
func isLocSecOffsetForm(form uint64) bool {
	switch form {
	case dwFormData4, dwFormData8, dwFormSecOff:
		return true
	default:
		return false
	}
}
