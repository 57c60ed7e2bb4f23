package vm

import "github.com/Open-Argon/Chloride-sub000/pkg/bytecode"

// framesPerChunk is the number of frames allocated together. Frames are
// reused once popped, so a steady-state call pattern allocates nothing.
const framesPerChunk = 64

// Frame is one activation: the unit being executed, its register file,
// its current scope and the calls it is assembling.
type Frame struct {
	Code      *bytecode.Translated
	Registers []Value
	Scope     *Scope
	Parent    *Frame
	Depth     int

	head  int
	calls []pendingCall
}

// pendingCall is a call between INIT_CALL and CALL.
type pendingCall struct {
	callee Value
	args   []Value
}

type frameChunk [framesPerChunk]Frame

// frameStack hands out frames from fixed-size chunks. Frame pointers stay
// valid while the frame is live because chunks never move.
type frameStack struct {
	chunks []*frameChunk
	n      int
}

func (fs *frameStack) push(code *bytecode.Translated, scope *Scope, parent *Frame) *Frame {
	c := fs.n / framesPerChunk
	if c == len(fs.chunks) {
		fs.chunks = append(fs.chunks, new(frameChunk))
	}
	f := &fs.chunks[c][fs.n%framesPerChunk]
	fs.n++

	n := int(code.RegisterCount)
	if n == 0 {
		n = 1
	}
	if cap(f.Registers) >= n {
		f.Registers = f.Registers[:n]
	} else {
		f.Registers = make([]Value, n)
	}
	for i := range f.Registers {
		f.Registers[i] = Null
	}
	f.Code = code
	f.Scope = scope
	f.Parent = parent
	f.Depth = 1
	if parent != nil {
		f.Depth = parent.Depth + 1
	}
	f.head = 0
	f.calls = f.calls[:0]
	return f
}

// pop releases the most recently pushed frame, dropping its references.
func (fs *frameStack) pop() {
	fs.n--
	f := &fs.chunks[fs.n/framesPerChunk][fs.n%framesPerChunk]
	for i := range f.Registers {
		f.Registers[i] = nil
	}
	for i := range f.calls {
		f.calls[i] = pendingCall{}
	}
	f.calls = f.calls[:0]
	f.Code = nil
	f.Scope = nil
	f.Parent = nil
}

// len returns the number of live frames.
func (fs *frameStack) len() int {
	return fs.n
}
