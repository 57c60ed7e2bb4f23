package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Loads (0x01-0x0F)
	// ========================================================================

	OpLoadNull       Opcode = 0x01 // dst = null: <dst:r>
	OpLoadBool       Opcode = 0x02 // dst = bool: <dst:r> <value:b>
	OpLoadConst      Opcode = 0x03 // dst = literal: <dst:r> <kind:b> <len:w> <off:w>
	OpLoadFunction   Opcode = 0x04 // dst = closure over current scope
	OpLoadBaseClass  Opcode = 0x05 // dst = global base class: <dst:r>
	OpCopyToRegister Opcode = 0x06 // <from:r> <to:r>

	// ========================================================================
	// Names (0x10-0x1F)
	// ========================================================================

	OpIdentifier Opcode = 0x10 // dst = lookup: <dst:r> <len:w> <off:w> <hash:w> <loc:w>
	OpDeclare    Opcode = 0x11 // innermost scope only: <src:r> <len:w> <off:w> <hash:w> <loc:w>
	OpAssign     Opcode = 0x12 // nearest binding: <src:r> <len:w> <off:w> <hash:w> <loc:w>

	// ========================================================================
	// Control flow (0x20-0x2F)
	// ========================================================================

	OpJump        Opcode = 0x20 // <target:w>
	OpJumpIfFalse Opcode = 0x21 // <cond:r> <target:w>
	OpJumpIfTrue  Opcode = 0x22 // <cond:r> <target:w>

	// ========================================================================
	// Scopes (0x30-0x3F)
	// ========================================================================

	OpNewScope   Opcode = 0x30 // push a scope chained to the current one
	OpPopScope   Opcode = 0x31 // restore the parent scope
	OpEmptyScope Opcode = 0x32 // replace the current scope with a fresh one

	// ========================================================================
	// Calls (0x40-0x4F)
	// ========================================================================

	OpInitCall  Opcode = 0x40 // <callee:r> <argc:b>
	OpInsertArg Opcode = 0x41 // <arg:r> <index:b>
	OpCall      Opcode = 0x42 // <dst:r> <loc:w>

	// ========================================================================
	// Operators (0x50-0x5F)
	// ========================================================================

	OpOperation Opcode = 0x50 // <op:b> <dst:r> <left:r> <right:r> <loc:w>
	OpNot       Opcode = 0x51 // in place: <reg:r>
	OpNegate    Opcode = 0x52 // in place: <reg:r> <loc:w>

	// ========================================================================
	// Attributes and items (0x60-0x6F)
	// ========================================================================

	OpLoadAccess   Opcode = 0x60 // <dst:r> <obj:r> <len:w> <off:w> <hash:w> <bind:b> <loc:w>
	OpAssignAccess Opcode = 0x61 // <obj:r> <src:r> <len:w> <off:w> <hash:w> <loc:w>
	OpLoadItem     Opcode = 0x62 // <dst:r> <obj:r> <index:r> <loc:w>
	OpAssignItem   Opcode = 0x63 // <obj:r> <index:r> <src:r> <loc:w>

	// ========================================================================
	// Lists (0x70-0x7F)
	// ========================================================================

	OpNewList    Opcode = 0x70 // <dst:r> <cap:w>
	OpListAppend Opcode = 0x71 // <list:r> <value:r>

	// ========================================================================
	// Classes (0x80-0x8F)
	// ========================================================================

	OpCreateClass Opcode = 0x80 // <dst:r> <parent:r> <len:w> <off:w> <loc:w>
	OpEnterClass  Opcode = 0x81 // push a scope backed by the class fields: <class:r>

	// ========================================================================
	// Iteration (0x90-0x9F)
	// ========================================================================

	OpLoadIter Opcode = 0x90 // in place: <reg:r> <loc:w>
	OpIterNext Opcode = 0x91 // <iter:r> <dst:r> <exit:w>

	// ========================================================================
	// Modules (0xA0-0xAF)
	// ========================================================================

	OpImport    Opcode = 0xA0 // <dst:r> <len:w> <off:w> <loc:w>
	OpImportAll Opcode = 0xA1 // declare every export: <module:r> <loc:w>
)

// Operand describes how one operand of an instruction is encoded.
type Operand uint8

const (
	// Reg is a one byte register index.
	Reg Operand = iota
	// Byte is a one byte immediate.
	Byte
	// Word is an eight byte little-endian immediate (offsets, lengths, hashes).
	Word
)

// Size returns the encoded width of the operand in bytes.
func (o Operand) Size() int {
	if o == Word {
		return 8
	}
	return 1
}

func (o Operand) String() string {
	switch o {
	case Reg:
		return "r"
	case Byte:
		return "b"
	case Word:
		return "w"
	default:
		return fmt.Sprintf("Operand(%d)", o)
	}
}

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Operands []Operand
	IsJump   bool
}

var opcodeInfo = map[Opcode]OpcodeInfo{
	OpLoadNull:       {Name: "LOAD_NULL", Operands: []Operand{Reg}},
	OpLoadBool:       {Name: "LOAD_BOOL", Operands: []Operand{Reg, Byte}},
	OpLoadConst:      {Name: "LOAD_CONST", Operands: []Operand{Reg, Byte, Word, Word}},
	OpLoadFunction:   {Name: "LOAD_FUNCTION", Operands: []Operand{Reg, Word, Word, Word, Word, Byte, Word, Word}},
	OpLoadBaseClass:  {Name: "LOAD_BASE_CLASS", Operands: []Operand{Reg}},
	OpCopyToRegister: {Name: "COPY_TO_REGISTER", Operands: []Operand{Reg, Reg}},

	OpIdentifier: {Name: "IDENTIFIER", Operands: []Operand{Reg, Word, Word, Word, Word}},
	OpDeclare:    {Name: "DECLARE", Operands: []Operand{Reg, Word, Word, Word, Word}},
	OpAssign:     {Name: "ASSIGN", Operands: []Operand{Reg, Word, Word, Word, Word}},

	OpJump:        {Name: "JUMP", Operands: []Operand{Word}, IsJump: true},
	OpJumpIfFalse: {Name: "JUMP_IF_FALSE", Operands: []Operand{Reg, Word}, IsJump: true},
	OpJumpIfTrue:  {Name: "JUMP_IF_TRUE", Operands: []Operand{Reg, Word}, IsJump: true},

	OpNewScope:   {Name: "NEW_SCOPE"},
	OpPopScope:   {Name: "POP_SCOPE"},
	OpEmptyScope: {Name: "EMPTY_SCOPE"},

	OpInitCall:  {Name: "INIT_CALL", Operands: []Operand{Reg, Byte}},
	OpInsertArg: {Name: "INSERT_ARG", Operands: []Operand{Reg, Byte}},
	OpCall:      {Name: "CALL", Operands: []Operand{Reg, Word}},

	OpOperation: {Name: "OPERATION", Operands: []Operand{Byte, Reg, Reg, Reg, Word}},
	OpNot:       {Name: "NOT", Operands: []Operand{Reg}},
	OpNegate:    {Name: "NEGATE", Operands: []Operand{Reg, Word}},

	OpLoadAccess:   {Name: "LOAD_ACCESS", Operands: []Operand{Reg, Reg, Word, Word, Word, Byte, Word}},
	OpAssignAccess: {Name: "ASSIGN_ACCESS", Operands: []Operand{Reg, Reg, Word, Word, Word, Word}},
	OpLoadItem:     {Name: "LOAD_ITEM", Operands: []Operand{Reg, Reg, Reg, Word}},
	OpAssignItem:   {Name: "ASSIGN_ITEM", Operands: []Operand{Reg, Reg, Reg, Word}},

	OpNewList:    {Name: "NEW_LIST", Operands: []Operand{Reg, Word}},
	OpListAppend: {Name: "LIST_APPEND", Operands: []Operand{Reg, Reg}},

	OpCreateClass: {Name: "CREATE_CLASS", Operands: []Operand{Reg, Reg, Word, Word, Word}},
	OpEnterClass:  {Name: "ENTER_CLASS", Operands: []Operand{Reg}},

	OpLoadIter: {Name: "LOAD_ITER", Operands: []Operand{Reg, Word}},
	OpIterNext: {Name: "ITER_NEXT", Operands: []Operand{Reg, Reg, Word}, IsJump: true},

	OpImport:    {Name: "IMPORT", Operands: []Operand{Reg, Word, Word, Word}},
	OpImportAll: {Name: "IMPORT_ALL", Operands: []Operand{Reg, Word}},
}

// GetOpcodeInfo returns metadata for an opcode and whether it is known.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfo[op]
	return info, ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeInfo[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfo[op]
	return ok
}

// OperandLen returns the number of operand bytes following the opcode.
func (op Opcode) OperandLen() int {
	n := 0
	for _, o := range opcodeInfo[op].Operands {
		n += o.Size()
	}
	return n
}

// InstructionLen returns the total instruction length including the opcode byte.
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump reports whether the instruction carries a jump target as its last operand.
func (op Opcode) IsJump() bool {
	return opcodeInfo[op].IsJump
}

// AllOpcodes returns all defined opcodes.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfo))
	for op := range opcodeInfo {
		ops = append(ops, op)
	}
	return ops
}

// ---------------------------------------------------------------------------
// Operation codes carried by OpOperation
// ---------------------------------------------------------------------------

// BinaryOp selects the operator applied by OpOperation.
type BinaryOp byte

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinFloorDiv
	BinMod
	BinPow
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
)

var binaryOpSymbols = [...]string{
	BinAdd:      "+",
	BinSub:      "-",
	BinMul:      "*",
	BinDiv:      "/",
	BinFloorDiv: "//",
	BinMod:      "%",
	BinPow:      "^",
	BinEq:       "==",
	BinNe:       "!=",
	BinLt:       "<",
	BinLe:       "<=",
	BinGt:       ">",
	BinGe:       ">=",
}

func (b BinaryOp) String() string {
	if int(b) < len(binaryOpSymbols) {
		return binaryOpSymbols[b]
	}
	return fmt.Sprintf("BinaryOp(%d)", b)
}

// ConstKind tags the payload of an OpLoadConst.
type ConstKind byte

const (
	ConstString ConstKind = 0
	ConstNumber ConstKind = 1
)
