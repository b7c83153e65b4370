// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

type rel32 struct {
	Offset uint32
	Info   uint32
}

type rel64 struct {
	Offset uint64
	Info   uint64
}

type rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (e *Elf) readRelocation(r io.Reader, s *SectionHeader, t SectionHeaderType) (error, *Relocation) {
	var err error
	var result Relocation
	result.Section = s

	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			var rel rela64
			if err = binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return err, nil
			}
			result.Offset = rel.Offset
			result.symbolIndex = int(rel.Info >> 32)
			result.Type = uint32(rel.Info)
			result.Addend = rel.Addend
		} else if t == SHT_REL {
			var rel rel64
			if err = binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return err, nil
			}
			result.Offset = rel.Offset
			result.symbolIndex = int(rel.Info >> 32)
			result.Type = uint32(rel.Info)
		} else {
			return fmt.Errorf("unknown type: %d", t), nil
		}
	} else {
		if t == SHT_RELA {
			var rel rela32
			if err = binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return err, nil
			}
			result.Offset = uint64(rel.Offset)
			result.symbolIndex = int(rel.Info >> 8)
			result.Type = uint32(rel.Info & 0xFF)
			result.Addend = int64(rel.Addend)
		} else if t == SHT_REL {
			var rel rel32
			if err = binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return err, nil
			}
			result.Offset = uint64(rel.Offset)
			result.symbolIndex = int(rel.Info >> 8)
			result.Type = uint32(rel.Info & 0xFF)
		} else {
			return fmt.Errorf("unknown type: %d", t), nil
		}
	}

	result.Symbol = e.Symbols[result.symbolIndex]
	return nil, &result
}
