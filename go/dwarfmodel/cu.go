// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package dwarfmodel

import (
	"encoding/binary"
	"fmt"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/elf"
	"github.com/wf-tools/dwarflint/go/readctx"
)

// BuildCUChain scans file's .debug_info and .debug_abbrev far enough to
// discover every compile unit's header, its DW_AT_low_pc, and every
// DW_AT_location/DW_AT_ranges attribute that refers into .debug_loc or
// .debug_ranges by offset rather than carrying its value inline. It
// stops at offset discovery and leaves interpreting what a DIE tree
// actually means to higher-level DWARF semantic tooling.
//
// An error decoding a CU is reported through facade and ends the scan:
// the CUs decoded before it are returned, and later units are not read.
func BuildCUChain(file *elf.Elf, facade *diag.Facade) (*CUChain, error) {
	infoSec := file.SectionByDebugID(elf.SecInfo)
	if infoSec == nil {
		return &CUChain{}, nil
	}
	abbrevSec := file.SectionByDebugID(elf.SecAbbrev)

	byteOrder := byteOrderOf(file)
	infoCtx := readctx.New(infoSec.Data, byteOrder)

	chain := &CUChain{}
	abbrevCache := make(map[uint64]map[uint64]*abbrev)

	for !infoCtx.EOF() {
		cu, err := readCU(infoCtx, abbrevSec, byteOrder, abbrevCache)
		if err != nil {
			where := diag.NewWhere(elf.SecInfo, uint64(infoCtx.Offset()))
			facade.Errorf(diag.CatInfo, where, "compile unit header: %v", err)
			break // header itself is unreadable; no sync point to recover at
		}
		chain.CUs = append(chain.CUs, cu)
	}
	return chain, nil
}

func byteOrderOf(file *elf.Elf) binary.ByteOrder {
	if file.Endian == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func readCU(ctx *readctx.Ctx, abbrevSec *elf.SectionHeader, byteOrder binary.ByteOrder, abbrevCache map[uint64]map[uint64]*abbrev) (*CU, error) {
	headOffset := uint64(ctx.Offset())

	unitLength, is64, err := readInitialLength(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial length: %w", err)
	}
	offsetSize := 4
	if is64 {
		offsetSize = 8
	}
	bodyEnd := ctx.Offset() + int(unitLength)

	version, err := ctx.Read2UByte()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	var abbrevOffset uint64
	var addressSize uint8
	if version >= 5 {
		return nil, fmt.Errorf("DWARF version %d unit type header is out of scope", version)
	}
	abbrevOffset, err = ctx.ReadOffset(is64)
	if err != nil {
		return nil, fmt.Errorf("abbrev_offset: %w", err)
	}
	addressSize, err = ctx.ReadUByte()
	if err != nil {
		return nil, fmt.Errorf("address_size: %w", err)
	}

	headSize := uint64(ctx.Offset()) - headOffset
	bodySize := uint64(bodyEnd - ctx.Offset())
	head := &CUHead{
		Offset:       headOffset,
		Size:         bodySize,
		HeadSize:     headSize,
		TotalSize:    headSize + bodySize,
		OffsetSize:   offsetSize,
		AbbrevOffset: abbrevOffset,
	}

	cu := &CU{
		Head:        head,
		CUDieOffset: uint64(ctx.Offset()),
		AddressSize: int(addressSize),
		Version:     int(version),
	}

	abbrevs, err := loadAbbrevTable(abbrevSec, byteOrder, abbrevOffset, abbrevCache)
	if err != nil {
		return nil, fmt.Errorf("abbrev table at %#x: %w", abbrevOffset, err)
	}

	dieCtx, err := readctx.InitSub(ctx, ctx.Offset(), bodyEnd)
	if err != nil {
		return nil, fmt.Errorf("CU body bounds: %w", err)
	}
	if err := walkDIEs(dieCtx, cu, abbrevs); err != nil {
		return nil, fmt.Errorf("DIE tree: %w", err)
	}

	if err := ctx.SeekTo(bodyEnd); err != nil {
		return nil, fmt.Errorf("advancing past CU: %w", err)
	}
	return cu, nil
}

// readInitialLength decodes the DWARF initial-length field: a plain
// 32-bit value, or the 64-bit DWARF escape 0xffffffff followed by a real
// 64-bit length.
func readInitialLength(ctx *readctx.Ctx) (uint64, bool, error) {
	v, err := ctx.Read4UByte()
	if err != nil {
		return 0, false, err
	}
	if v != 0xffffffff {
		return uint64(v), false, nil
	}
	v64, err := ctx.Read8UByte()
	if err != nil {
		return 0, false, err
	}
	return v64, true, nil
}

func loadAbbrevTable(abbrevSec *elf.SectionHeader, byteOrder binary.ByteOrder, offset uint64, cache map[uint64]map[uint64]*abbrev) (map[uint64]*abbrev, error) {
	if cached, ok := cache[offset]; ok {
		return cached, nil
	}
	if abbrevSec == nil || offset > uint64(len(abbrevSec.Data)) {
		return nil, fmt.Errorf("no .debug_abbrev data at offset %#x", offset)
	}
	sub, err := readctx.InitSub(readctx.New(abbrevSec.Data, byteOrder), int(offset), len(abbrevSec.Data))
	if err != nil {
		return nil, err
	}
	table, err := parseAbbrevTable(sub)
	if err != nil {
		return nil, err
	}
	cache[offset] = table
	return table, nil
}

// walkDIEs flatly decodes every DIE in the CU, ignoring tree structure:
// the byte layout of a DIE sequence is the same regardless of nesting,
// and offset discovery doesn't need parent/child relationships, only
// every attribute's form and value.
func walkDIEs(ctx *readctx.Ctx, cu *CU, abbrevs map[uint64]*abbrev) error {
	first := true
	for !ctx.EOF() {
		dieOffset := uint64(ctx.Offset())
		code, err := ctx.ReadULEB128()
		if err != nil {
			return err
		}
		if code == 0 {
			continue // null entry, terminates a sibling chain
		}
		entry, ok := abbrevs[code]
		if !ok {
			return fmt.Errorf("DIE at %#x: unknown abbrev code %d", dieOffset, code)
		}

		for _, at := range entry.Attribs {
			val, err := readForm(ctx, at.Form, cu.AddressSize, cu.Head.OffsetSize)
			if err != nil {
				return fmt.Errorf("DIE at %#x attribute %#x: %w", dieOffset, at.Name, err)
			}
			switch at.Name {
			case dwAtLowPC:
				if first { // low_pc is only meaningful on the CU DIE
					cu.LowPC = val.Scalar
					cu.HasLowPC = true
				}
			case dwAtLocation:
				if isLocSecOffsetForm(at.Form) {
					cu.LocRefs = append(cu.LocRefs, Reference{Offset: val.Scalar, CU: cu})
				}
			case dwAtRanges:
				cu.RangeRefs = append(cu.RangeRefs, Reference{Offset: val.Scalar, CU: cu})
			}
		}
		first = false
	}
	return nil
}
