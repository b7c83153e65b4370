// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package locexpr decodes and structurally validates one DWARF location
// expression: a tiny stack-machine bytecode embedded in .debug_loc (and,
// inline, in DW_FORM_exprloc attributes).
package locexpr

import (
	"slices"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/dwarfmodel"
	"github.com/wf-tools/dwarflint/go/elf"
	"github.com/wf-tools/dwarflint/go/readctx"
	"github.com/wf-tools/dwarflint/go/relocation"
)

// pendingRef is one DW_OP_bra/DW_OP_skip branch target awaiting
// resolution against opaddrs at the end of the walk.
type pendingRef struct {
	target uint64
	where  *diag.Where
}

// Check walks the length-L location expression starting at ctx's current
// offset, reporting every defect through facade. ctx's cursor keeps
// absolute section offsets (per readctx.Ctx), so those offsets are used
// directly to build Where frames and to reconcile operand offsets against
// rel's relocation table without re-adding a base.
//
// Check always consumes exactly L bytes of ctx (or fails trying to), so
// callers can rely on the cursor having advanced past the expression
// regardless of whether any diagnostic fired.
func Check(ctx *readctx.Ctx, cu *dwarfmodel.CU, rel *relocation.Cursor, length int, where *diag.Where, facade *diag.Facade) error {
	sub, err := readctx.InitSub(ctx, ctx.Offset(), ctx.Offset()+length)
	if err != nil {
		facade.Errorf(diag.CatLoc, where, "not enough data for a %d-byte location expression", length)
		return err
	}
	defer ctx.SeekTo(sub.End())
	exprStart := sub.Offset()

	var opaddrs []uint64
	var oprefs []pendingRef

	for !sub.EOF() {
		opcodeOff := uint64(sub.Offset())
		opWhere := where.Push(elf.SecLocExpr, opcodeOff)
		opaddrs = append(opaddrs, opcodeOff)

		opcode, err := sub.ReadUByte()
		if err != nil {
			facade.Errorf(diag.CatLoc, opWhere, "can't read opcode")
			break
		}

		forms, ok := opcodeTable[opcode]
		if !ok {
			facade.Errorf(diag.CatLoc, opWhere, "can't decode unknown opcode %#x", opcode)
			break
		}

		value1, ok1 := readOperand(sub, forms.op1, cu, rel, opcode, opWhere, facade)
		if !ok1 {
			break
		}
		if _, ok2 := readOperand(sub, forms.op2, cu, rel, opcode, opWhere, facade); !ok2 {
			break
		}

		switch opcode {
		case opBra, opSkip:
			skip := int16(uint16(value1))
			switch {
			case skip == 0:
				facade.Warnf(diag.CatLoc|diag.CatAccBloat|diag.CatImpact3, opWhere, "%s with skip 0 has no effect", opcodeName(opcode))
			case skip > 0 && !sub.NeedData(int(skip)):
				facade.Errorf(diag.CatLoc, opWhere, "%s branches out of location expression", opcodeName(opcode))
			case skip < 0 && uint64(-skip) > uint64(sub.Offset()-exprStart):
				facade.Errorf(diag.CatLoc, opWhere, "%s branches before the beginning of location expression", opcodeName(opcode))
			default:
				target := uint64(int64(sub.Offset()) + int64(skip))
				oprefs = append(oprefs, pendingRef{target: target, where: opWhere})
			}
		case opConst8u, opConst8s:
			if cu.AddressSize == 4 {
				facade.Errorf(diag.CatLoc, opWhere, "%s is out of range on a 32-bit target", opcodeName(opcode))
			}
		default:
			if cu.AddressSize == 4 && is32BitBloatChecked(opcode) && value1 > 0xffffffff {
				facade.Warnf(diag.CatLoc|diag.CatAccBloat|diag.CatImpact2, opWhere, "%s with operand %#x doesn't fit a 32-bit target", opcodeName(opcode), value1)
			}
		}
	}

	for _, ref := range oprefs {
		if !slices.Contains(opaddrs, ref.target) {
			facade.Errorf(diag.CatLoc, ref.where, "branch target %#x doesn't land on an opcode boundary", ref.target)
		}
	}
	return nil
}

// readOperand reads one operand of kind, applying any relocation that
// covers its bytes. A zero kind (opNone) is a no-op returning (0, true).
// ok is false only when the underlying cursor read failed, signalling the
// caller to stop decoding this expression.
func readOperand(ctx *readctx.Ctx, kind operandKind, cu *dwarfmodel.CU, rel *relocation.Cursor, opcode uint8, opWhere *diag.Where, facade *diag.Facade) (uint64, bool) {
	if kind == opNone {
		return 0, true
	}

	operandOff := uint64(ctx.Offset())

	if kind == opKindBlock {
		n, err := ctx.ReadULEB128()
		if err != nil {
			facade.Errorf(diag.CatLoc, opWhere, "%s: can't read block length", opcodeName(opcode))
			return 0, false
		}
		blockEnd := uint64(ctx.Offset()) + n
		if err := ctx.Skip(int(n)); err != nil {
			facade.Errorf(diag.CatLoc, opWhere, "%s: block runs past the end of the expression", opcodeName(opcode))
			return 0, false
		}
		// The length field itself may never be relocated; bytes inside the
		// block body may be, but there's no single scalar to apply them
		// to, so they're only drained here, never applied.
		if rel != nil {
			if r := rel.Next(operandOff, relocation.SkipMismatched, opWhere); r != nil {
				facade.Errorf(diag.CatLoc|diag.CatReloc, opWhere, "%s: relocation against the block length field", opcodeName(opcode))
			}
			rel.SkipTo(blockEnd, relocation.SkipOK, opWhere)
		}
		return n, true
	}

	value, size, err := readScalar(ctx, kind, cu)
	if err != nil {
		facade.Errorf(diag.CatLoc, opWhere, "%s: can't read operand", opcodeName(opcode))
		return 0, false
	}

	if rel != nil {
		if r := rel.Next(operandOff, relocation.SkipMismatched, opWhere); r != nil {
			if opcode == opCallRef {
				facade.Warnf(diag.CatLoc|diag.CatImpact1, opWhere, "%s: a relocation targets this operand, but resolving call_ref targets isn't supported", opcodeName(opcode))
			} else {
				rel.Apply(r, size, &value, targetKind(opcode), nil, opWhere)
			}
		}
	}
	return value, true
}

// readScalar reads the fixed- or variable-width bytes for kind and
// reports the byte width a relocation against it should be masked to (8
// for forms with no natural width, such as LEB128 operands, since those
// can't be usefully relocated by size anyway).
func readScalar(ctx *readctx.Ctx, kind operandKind, cu *dwarfmodel.CU) (value uint64, size int, err error) {
	switch kind {
	case opKindAddr:
		size = cu.AddressSize
		v, err := readSized(ctx, size)
		return v, size, err
	case opKindRefAddr:
		size = cu.Head.OffsetSize
		v, err := ctx.ReadOffset(size == 8)
		return v, size, err
	case opKindData1:
		v, err := ctx.ReadUByte()
		return uint64(v), 1, err
	case opKindData2:
		v, err := ctx.Read2UByte()
		return uint64(v), 2, err
	case opKindData4:
		v, err := ctx.Read4UByte()
		return uint64(v), 4, err
	case opKindData8:
		v, err := ctx.Read8UByte()
		return v, 8, err
	case opKindULEB:
		v, err := ctx.ReadULEB128()
		return v, 8, err
	case opKindSLEB:
		v, err := ctx.ReadSLEB128()
		return uint64(v), 8, err
	default:
		return 0, 0, nil
	}
}

func readSized(ctx *readctx.Ctx, size int) (uint64, error) {
	if size == 8 {
		return ctx.Read8UByte()
	}
	v, err := ctx.Read4UByte()
	return uint64(v), err
}

// targetKind derives the relocation TargetKind §4.5 step 3 assigns per
// opcode. DW_OP_call_ref never reaches this: its relocations are rejected
// as unsupported before readOperand gets here.
func targetKind(opcode uint8) relocation.TargetKind {
	switch opcode {
	case opCall2, opCall4:
		return relocation.SecInfo
	case opAddr:
		return relocation.RelAddress
	default:
		return relocation.RelValue
	}
}
