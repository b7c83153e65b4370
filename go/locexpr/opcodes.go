// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package locexpr

import "fmt"

// DW_OP_* opcodes this package treats specially, either because they take
// an operand whose form depends on the target's address size, or because
// §4.5 singles them out for extra checks.
const (
	opAddr       = 0x03
	opConst8u    = 0x0e
	opConst8s    = 0x0f
	opConstu     = 0x10
	opConsts     = 0x11
	opPlusUconst = 0x23
	opBra        = 0x28
	opSkip       = 0x2f
	opDerefSize  = 0x94
	opCall2      = 0x98
	opCall4      = 0x99
	opCallRef    = 0x9a
	opImplicitValue = 0x9e
)

// operandKind names the on-the-wire shape of one opcode operand, in the
// same vocabulary as read_form: fixed-width data, a variable-length LEB128
// integer, an address, or a length-prefixed block.
type operandKind int

const (
	opNone operandKind = iota
	opKindAddr
	opKindRefAddr // offset_size bytes; only DW_OP_call_ref uses this
	opKindData1
	opKindData2
	opKindData4
	opKindData8
	opKindULEB
	opKindSLEB
	opKindBlock
)

// operandPair is the (op1_form, op2_form) table entry looked up per
// opcode. Most opcodes take zero or one operand; DW_OP_bregx and
// DW_OP_bit_piece are the two-operand exceptions.
type operandPair struct {
	op1, op2 operandKind
}

// opcodeTable is the fixed opcode -> operand-forms table §4.5 step 2 looks
// up. It isn't transcribed from anywhere: it's the standard DWARF2-4
// DW_OP_* operand encoding (DWARF Debugging Information Format, section
// 7.7.1), expressed in the same read_form vocabulary the rest of this
// package already uses.
var opcodeTable = buildOpcodeTable()

func buildOpcodeTable() map[uint8]operandPair {
	t := map[uint8]operandPair{
		opAddr:          {opKindAddr, opNone},
		0x06:            {opNone, opNone}, // deref
		0x08:            {opKindData1, opNone}, // const1u
		0x09:            {opKindData1, opNone}, // const1s
		0x0a:            {opKindData2, opNone}, // const2u
		0x0b:            {opKindData2, opNone}, // const2s
		0x0c:            {opKindData4, opNone}, // const4u
		0x0d:            {opKindData4, opNone}, // const4s
		opConst8u:       {opKindData8, opNone},
		opConst8s:       {opKindData8, opNone},
		opConstu:        {opKindULEB, opNone},
		opConsts:        {opKindSLEB, opNone},
		0x12:            {opNone, opNone}, // dup
		0x13:            {opNone, opNone}, // drop
		0x14:            {opNone, opNone}, // over
		0x15:            {opKindData1, opNone}, // pick
		0x16:            {opNone, opNone}, // swap
		0x17:            {opNone, opNone}, // rot
		0x18:            {opNone, opNone}, // xderef
		0x19:            {opNone, opNone}, // abs
		0x1a:            {opNone, opNone}, // and
		0x1b:            {opNone, opNone}, // div
		0x1c:            {opNone, opNone}, // minus
		0x1d:            {opNone, opNone}, // mod
		0x1e:            {opNone, opNone}, // mul
		0x1f:            {opNone, opNone}, // neg
		0x20:            {opNone, opNone}, // not
		0x21:            {opNone, opNone}, // or
		0x22:            {opNone, opNone}, // plus
		opPlusUconst:    {opKindULEB, opNone},
		0x24:            {opNone, opNone}, // shl
		0x25:            {opNone, opNone}, // shr
		0x26:            {opNone, opNone}, // shra
		0x27:            {opNone, opNone}, // xor
		opBra:           {opKindData2, opNone},
		0x29:            {opNone, opNone}, // eq
		0x2a:            {opNone, opNone}, // ge
		0x2b:            {opNone, opNone}, // gt
		0x2c:            {opNone, opNone}, // le
		0x2d:            {opNone, opNone}, // lt
		0x2e:            {opNone, opNone}, // ne
		opSkip:          {opKindData2, opNone},
		0x90:            {opKindULEB, opNone}, // regx
		0x91:            {opKindSLEB, opNone}, // fbreg
		0x92:            {opKindULEB, opKindSLEB}, // bregx
		0x93:            {opKindULEB, opNone}, // piece
		opDerefSize:     {opKindData1, opNone},
		0x95:            {opKindData1, opNone}, // xderef_size
		0x96:            {opNone, opNone}, // nop
		0x97:            {opNone, opNone}, // push_object_address
		opCall2:         {opKindData2, opNone},
		opCall4:         {opKindData4, opNone},
		opCallRef:       {opKindRefAddr, opNone},
		0x9b:            {opNone, opNone}, // form_tls_address
		0x9c:            {opNone, opNone}, // call_frame_cfa
		0x9d:            {opKindULEB, opKindULEB}, // bit_piece
		opImplicitValue: {opKindBlock, opNone},
		0x9f:            {opNone, opNone}, // stack_value
	}
	for i := 0; i <= 31; i++ {
		t[uint8(0x30+i)] = operandPair{opNone, opNone}       // litN
		t[uint8(0x50+i)] = operandPair{opNone, opNone}       // regN
		t[uint8(0x70+i)] = operandPair{opKindSLEB, opNone}   // bregN
	}
	return t
}

// opcodeNames backs diagnostics; opcodes outside this table still get a
// readable name via opcodeName's fallback.
var opcodeNames = map[uint8]string{
	opAddr: "DW_OP_addr", opBra: "DW_OP_bra", opSkip: "DW_OP_skip",
	opConst8u: "DW_OP_const8u", opConst8s: "DW_OP_const8s",
	opConstu: "DW_OP_constu", opConsts: "DW_OP_consts",
	opDerefSize: "DW_OP_deref_size", opPlusUconst: "DW_OP_plus_uconst",
	opCall2: "DW_OP_call2", opCall4: "DW_OP_call4", opCallRef: "DW_OP_call_ref",
}

func opcodeName(opcode uint8) string {
	if n, ok := opcodeNames[opcode]; ok {
		return n
	}
	return fmt.Sprintf("DW_OP_%#x", opcode)
}

// is32BitBloatChecked reports whether opcode is one of the four §4.5 step
// 4 singles out for the "operand too wide for a 32-bit target" warning.
func is32BitBloatChecked(opcode uint8) bool {
	switch opcode {
	case opConstu, opConsts, opDerefSize, opPlusUconst:
		return true
	default:
		return false
	}
}
