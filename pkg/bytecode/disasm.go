package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the unit, including
// nested function bodies.
func Disassemble(t *Translated) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; === %s ===\n", t.Path))
	disassembleInto(&sb, t, t.Bytecode, t.RegisterCount, "")
	return sb.String()
}

func disassembleInto(sb *strings.Builder, t *Translated, code []byte, regs uint8, indent string) {
	sb.WriteString(fmt.Sprintf("%s; registers: %d, bytes: %d\n", indent, regs, len(code)))
	for off := 0; off < len(code); {
		in, err := Decode(code, off)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%s%04d  ; %v\n", indent, off, err))
			return
		}
		sb.WriteString(fmt.Sprintf("%s%04d  %-16s", indent, off, in.Op))
		sb.WriteString(formatOperands(t, in))
		sb.WriteString("\n")
		if in.Op == OpLoadFunction {
			body := t.Constants.Get(in.Operands[7], in.Operands[6])
			disassembleInto(sb, t, body, uint8(in.Operands[5]), indent+"    ")
		}
		off += in.Len()
	}
}

func formatOperands(t *Translated, in Instruction) string {
	o := in.Operands
	quote := func(length, off uint64) string {
		return fmt.Sprintf("%q", t.String(length, off))
	}
	switch in.Op {
	case OpLoadNull, OpLoadBaseClass, OpNot, OpEnterClass:
		return fmt.Sprintf("r%d", o[0])
	case OpLoadBool:
		return fmt.Sprintf("r%d %t", o[0], o[1] != 0)
	case OpLoadConst:
		return fmt.Sprintf("r%d %s", o[0], quote(o[2], o[3]))
	case OpLoadFunction:
		return fmt.Sprintf("r%d %s", o[0], quote(o[1], o[2]))
	case OpCopyToRegister:
		return fmt.Sprintf("r%d -> r%d", o[0], o[1])
	case OpIdentifier, OpDeclare, OpAssign:
		return fmt.Sprintf("r%d %s", o[0], quote(o[1], o[2]))
	case OpJump:
		return fmt.Sprintf("-> %04d", o[0])
	case OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("r%d -> %04d", o[0], o[1])
	case OpInitCall:
		return fmt.Sprintf("r%d argc=%d", o[0], o[1])
	case OpInsertArg:
		return fmt.Sprintf("r%d #%d", o[0], o[1])
	case OpCall, OpNegate, OpLoadIter, OpNewList:
		return fmt.Sprintf("r%d", o[0])
	case OpOperation:
		return fmt.Sprintf("r%d = r%d %s r%d", o[1], o[2], BinaryOp(o[0]), o[3])
	case OpLoadAccess:
		return fmt.Sprintf("r%d = r%d.%s", o[0], o[1], t.String(o[2], o[3]))
	case OpAssignAccess:
		return fmt.Sprintf("r%d.%s = r%d", o[0], t.String(o[2], o[3]), o[1])
	case OpLoadItem:
		return fmt.Sprintf("r%d = r%d[r%d]", o[0], o[1], o[2])
	case OpAssignItem:
		return fmt.Sprintf("r%d[r%d] = r%d", o[0], o[1], o[2])
	case OpListAppend:
		return fmt.Sprintf("r%d += r%d", o[0], o[1])
	case OpCreateClass:
		return fmt.Sprintf("r%d %s(r%d)", o[0], quote(o[2], o[3]), o[1])
	case OpIterNext:
		return fmt.Sprintf("r%d = next r%d else -> %04d", o[1], o[0], o[2])
	case OpImport:
		return fmt.Sprintf("r%d %s", o[0], quote(o[1], o[2]))
	case OpImportAll:
		return fmt.Sprintf("r%d *", o[0])
	}
	return ""
}
