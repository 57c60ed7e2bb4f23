package bytecode

import (
	"bytes"
	"testing"
)

func TestArenaDeduplicates(t *testing.T) {
	a := NewArena()
	first := a.PushString("hello")
	other := a.PushString("world")
	again := a.PushString("hello")

	if first != again {
		t.Errorf("duplicate push returned %d, want %d", again, first)
	}
	if other == first {
		t.Errorf("distinct payloads share offset %d", first)
	}
	if a.Len() != len("hello")+len("world") {
		t.Errorf("arena length = %d, want %d", a.Len(), 10)
	}
}

func TestArenaOffsetsStableAcrossGrowth(t *testing.T) {
	a := NewArena()
	off := a.PushString("anchor")
	for i := 0; i < 1000; i++ {
		a.Push([]byte{byte(i), byte(i >> 8), 0xFF})
	}
	if got := string(a.Get(uint64(off), 6)); got != "anchor" {
		t.Fatalf("Get after growth = %q, want %q", got, "anchor")
	}
}

func TestArenaGetOutOfRange(t *testing.T) {
	a := NewArena()
	a.PushString("abc")
	if got := a.Get(2, 5); got != nil {
		t.Errorf("Get(2, 5) = %v, want nil", got)
	}
	if got := a.Get(^uint64(0), 2); got != nil {
		t.Errorf("overflowing Get = %v, want nil", got)
	}
}

func TestArenaFromBytes(t *testing.T) {
	a := NewArenaFromBytes([]byte("xyz"))
	if !bytes.Equal(a.Get(1, 2), []byte("yz")) {
		t.Errorf("Get(1, 2) = %q", a.Get(1, 2))
	}
	off := a.PushString("q")
	if off != 3 {
		t.Errorf("push after wrap at %d, want 3", off)
	}
}
