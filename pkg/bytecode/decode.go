package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []uint64
}

// Len returns the encoded length of the instruction.
func (in Instruction) Len() int {
	return in.Op.InstructionLen()
}

// Target returns the jump target of a jump instruction.
func (in Instruction) Target() (uint64, bool) {
	if !in.Op.IsJump() || len(in.Operands) == 0 {
		return 0, false
	}
	return in.Operands[len(in.Operands)-1], true
}

// Decode reads the instruction starting at off.
func Decode(code []byte, off int) (Instruction, error) {
	if off < 0 || off >= len(code) {
		return Instruction{}, fmt.Errorf("offset %d out of range", off)
	}
	op := Opcode(code[off])
	info, ok := GetOpcodeInfo(op)
	if !ok {
		return Instruction{}, fmt.Errorf("invalid opcode 0x%02X at %d", byte(op), off)
	}
	in := Instruction{Offset: off, Op: op, Operands: make([]uint64, len(info.Operands))}
	pos := off + 1
	for i, o := range info.Operands {
		if pos+o.Size() > len(code) {
			return Instruction{}, fmt.Errorf("truncated %s at %d", op, off)
		}
		if o == Word {
			in.Operands[i] = binary.LittleEndian.Uint64(code[pos:])
		} else {
			in.Operands[i] = uint64(code[pos])
		}
		pos += o.Size()
	}
	return in, nil
}

// Instructions decodes a whole buffer.
func Instructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	for off := 0; off < len(code); {
		in, err := Decode(code, off)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		off += in.Len()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Parameter lists
// ---------------------------------------------------------------------------

// Param is a function parameter as stored in the parameter blob.
type Param struct {
	Name string
	Hash uint64
}

// EncodeParams serializes parameter names as (hash, length, bytes) records.
func EncodeParams(names []string) []byte {
	var buf []byte
	for _, n := range names {
		buf = binary.LittleEndian.AppendUint64(buf, HashName(n))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(n)))
		buf = append(buf, n...)
	}
	return buf
}

// DecodeParams parses a blob written by EncodeParams.
func DecodeParams(blob []byte) ([]Param, error) {
	var params []Param
	for len(blob) > 0 {
		if len(blob) < 16 {
			return nil, fmt.Errorf("truncated parameter record")
		}
		h := binary.LittleEndian.Uint64(blob)
		n := binary.LittleEndian.Uint64(blob[8:])
		blob = blob[16:]
		if n > uint64(len(blob)) {
			return nil, fmt.Errorf("parameter name overruns blob")
		}
		params = append(params, Param{Name: string(blob[:n]), Hash: h})
		blob = blob[n:]
	}
	return params, nil
}
