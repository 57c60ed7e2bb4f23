package bytecode

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Location is a source span attached to an instruction.
type Location struct {
	Line   uint64
	Column uint64
	Length uint64
}

// LocationTable is an ordered list of source spans. Instructions refer
// to entries by index. It is shared between a unit and the function
// bodies nested inside it.
type LocationTable struct {
	mu      sync.RWMutex
	entries []Location
}

// NewLocationTable returns a table holding entries.
func NewLocationTable(entries ...Location) *LocationTable {
	return &LocationTable{entries: entries}
}

// Add appends loc and returns its index.
func (lt *LocationTable) Add(loc Location) uint64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.entries = append(lt.entries, loc)
	return uint64(len(lt.entries) - 1)
}

// At returns the location at index i.
func (lt *LocationTable) At(i uint64) (Location, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	if i >= uint64(len(lt.entries)) {
		return Location{}, false
	}
	return lt.entries[i], true
}

// Entries returns a copy of every location in order.
func (lt *LocationTable) Entries() []Location {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	out := make([]Location, len(lt.entries))
	copy(out, lt.entries)
	return out
}

// Len returns the number of entries.
func (lt *LocationTable) Len() int {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return len(lt.entries)
}

// MaxRegisters is the largest register file a unit can request.
const MaxRegisters = 255

// Translated is the compiled form of one source file or function body.
type Translated struct {
	Path          string
	RegisterCount uint8
	Bytecode      []byte
	Constants     *Arena
	Locations     *LocationTable
}

// NewTranslated returns an empty unit for the file at path.
func NewTranslated(path string) *Translated {
	return &Translated{
		Path:      path,
		Constants: NewArena(),
		Locations: NewLocationTable(),
	}
}

// Child returns an empty unit that shares t's constants and locations.
// Function bodies are translated into a child and then copied into the
// arena.
func (t *Translated) Child() *Translated {
	return &Translated{
		Path:      t.Path,
		Constants: t.Constants,
		Locations: t.Locations,
	}
}

// View returns a unit executing body in t's constant and location space.
func (t *Translated) View(body []byte, registers uint8) *Translated {
	return &Translated{
		Path:          t.Path,
		RegisterCount: registers,
		Bytecode:      body,
		Constants:     t.Constants,
		Locations:     t.Locations,
	}
}

// Len returns the current bytecode length, the offset of the next instruction.
func (t *Translated) Len() int {
	return len(t.Bytecode)
}

// Emit appends an opcode and returns its offset.
func (t *Translated) Emit(op Opcode) int {
	off := len(t.Bytecode)
	t.Bytecode = append(t.Bytecode, byte(op))
	return off
}

// PushByte appends a raw byte or register operand.
func (t *Translated) PushByte(b byte) {
	t.Bytecode = append(t.Bytecode, b)
}

// PushWord appends an eight byte little-endian operand and returns its offset.
func (t *Translated) PushWord(w uint64) int {
	off := len(t.Bytecode)
	t.Bytecode = binary.LittleEndian.AppendUint64(t.Bytecode, w)
	return off
}

// SetWord overwrites the word at off. It is how jump placeholders are patched.
func (t *Translated) SetWord(off int, w uint64) {
	binary.LittleEndian.PutUint64(t.Bytecode[off:off+8], w)
}

// PatchJump points the placeholder at off to the current end of the buffer.
func (t *Translated) PatchJump(off int) {
	t.SetWord(off, uint64(len(t.Bytecode)))
}

// PatchJumpTo points the placeholder at off to target.
func (t *Translated) PatchJumpTo(off int, target int) {
	t.SetWord(off, uint64(target))
}

// Word reads the word at off.
func (t *Translated) Word(off int) uint64 {
	return binary.LittleEndian.Uint64(t.Bytecode[off : off+8])
}

// SetRegisters raises the register high-water mark to n.
// It reports an error if n does not fit the one byte register count.
func (t *Translated) SetRegisters(n int) error {
	if n > MaxRegisters {
		return fmt.Errorf("register count %d exceeds %d", n, MaxRegisters)
	}
	if n > int(t.RegisterCount) {
		t.RegisterCount = uint8(n)
	}
	return nil
}

// AddLocation records a source span and returns its index.
func (t *Translated) AddLocation(line, column, length int) uint64 {
	return t.Locations.Add(Location{Line: uint64(line), Column: uint64(column), Length: uint64(length)})
}

// String reads a string constant from the arena.
func (t *Translated) String(length, off uint64) string {
	return string(t.Constants.Get(off, length))
}
