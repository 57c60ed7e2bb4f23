// Package bytecode defines the register bytecode produced by the compiler
// and executed by the vm package.
//
// # Encoding
//
// Every instruction is a one byte opcode followed by a fixed operand
// layout described by the opcode table. Operands are either a register
// index (one byte), a raw byte, or a word (eight bytes, little-endian).
// Offsets, lengths and hashes are always words. Jump targets are absolute
// offsets into the buffer that contains the jump.
//
// Register 0 is the accumulator: every statement leaves its value there,
// and a function body returns whatever r0 holds when its buffer ends.
// Temporaries are allocated above it with a stack discipline, and the
// unit's RegisterCount records the high-water mark.
//
// # Units
//
// A Translated unit holds the register count, the bytecode buffer, a
// Constant Arena with literal and identifier bytes, and the source
// location table. Function bodies are compiled into a separate buffer
// that shares the arena and location table of the enclosing unit, then
// copied into the arena. LOAD_FUNCTION refers to the body by offset and
// length, so function code is relocatable within its unit.
//
// # Identifier hashes
//
// Names are hashed with HashName at translation time and the hash is
// embedded next to the name's arena reference. The runtime uses the same
// function for names built at run time.
package bytecode
