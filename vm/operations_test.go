package vm

import (
	"math/big"
	"testing"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		num, den int64
		want     string
	}{
		{5, 1, "5"},
		{-3, 1, "-3"},
		{1, 2, "0.5"},
		{-1, 8, "-0.125"},
		{3, 20, "0.15"},
		{1, 3, "1/3"},
		{-2, 7, "-2/7"},
	}
	for _, tt := range tests {
		got := formatNumber(NewNumber(big.NewRat(tt.num, tt.den)))
		if got != tt.want {
			t.Errorf("formatNumber(%d/%d) = %q, want %q", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestBinaryOps(t *testing.T) {
	s := New(Config{}).NewState()
	n := func(a, b int64) Value { return NewNumber(big.NewRat(a, b)) }
	tests := []struct {
		op   bytecode.BinaryOp
		a, b Value
		want string
	}{
		{bytecode.BinAdd, n(1, 2), n(1, 3), "5/6"},
		{bytecode.BinSub, n(1, 1), n(3, 1), "-2"},
		{bytecode.BinMul, n(2, 3), n(3, 1), "2"},
		{bytecode.BinDiv, n(1, 1), n(4, 1), "0.25"},
		{bytecode.BinFloorDiv, n(7, 1), n(-2, 1), "-4"},
		{bytecode.BinMod, n(7, 1), n(-2, 1), "-1"},
		{bytecode.BinPow, n(2, 3), n(2, 1), "4/9"},
		{bytecode.BinPow, n(4, 1), n(1, 2), "2"},
		{bytecode.BinLt, n(1, 1), n(2, 1), "true"},
		{bytecode.BinGe, n(1, 1), n(2, 1), "false"},
		{bytecode.BinAdd, NewString("a"), NewString("b"), "'ab'"},
		{bytecode.BinLt, NewString("a"), NewString("b"), "true"},
		{bytecode.BinEq, NewString("a"), n(1, 1), "false"},
		{bytecode.BinNe, Null, False, "true"},
		{bytecode.BinAdd, NewList(n(1, 1)), NewList(n(2, 1)), "[1, 2]"},
	}
	for _, tt := range tests {
		v, err := s.BinaryOp(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s %s %s: %v", Repr(tt.a), tt.op, Repr(tt.b), err)
			continue
		}
		if got := Repr(v); got != tt.want {
			t.Errorf("%s %s %s = %s, want %s", Repr(tt.a), tt.op, Repr(tt.b), got, tt.want)
		}
	}
}

func TestBinaryOpErrors(t *testing.T) {
	s := New(Config{}).NewState()
	zero := NumberFromInt(0)
	for _, op := range []bytecode.BinaryOp{bytecode.BinDiv, bytecode.BinFloorDiv, bytecode.BinMod} {
		if _, err := s.BinaryOp(op, NumberFromInt(1), zero); !arerr.IsKind(err, arerr.Runtime) {
			t.Errorf("1 %s 0: err = %v", op, err)
		}
	}
	if _, err := s.BinaryOp(bytecode.BinPow, zero, NumberFromInt(-1)); err == nil {
		t.Errorf("0 ^ -1 succeeded")
	}
	if _, err := s.BinaryOp(bytecode.BinSub, NewString("a"), NewString("b")); err == nil {
		t.Errorf("string subtraction succeeded")
	}
}

func TestCyclicLists(t *testing.T) {
	s := New(Config{}).NewState()
	a, b := NewList(), NewList()
	a.Append(b)
	b.Append(a)
	if got := Repr(a); got != "[[[...]]]" {
		t.Errorf("Repr(a) = %s", got)
	}
	if got, err := s.Str(b); err != nil || got != "[[[...]]]" {
		t.Errorf("Str(b) = %q, %v", got, err)
	}
	self := NewList(NumberFromInt(1))
	self.Append(self)
	if got := Repr(self); got != "[1, [...]]" {
		t.Errorf("Repr(self) = %s", got)
	}
	if eq, err := s.Equal(a, b); err != nil || !eq {
		t.Errorf("Equal(a, b) = %v, %v", eq, err)
	}
	if eq, err := s.Equal(self, a); err != nil || eq {
		t.Errorf("Equal(self, a) = %v, %v", eq, err)
	}
}

func TestRepeatCount(t *testing.T) {
	tests := []struct {
		n      int64
		size   int
		want   int
		wantOK bool
	}{
		{3, 2, 3, true},
		{-1, 4, 0, true},
		{maxRepeat, 1, maxRepeat, true},
		{maxRepeat, 0, 0, true},
		{maxRepeat, 2, 0, false},
		{maxRepeat + 1, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := repeatCount(NumberFromInt(tt.n), tt.size)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("repeatCount(%d, %d) = %d, %v", tt.n, tt.size, got, ok)
		}
	}
}

func TestPowRatLimit(t *testing.T) {
	if _, err := powRat(big.NewRat(3, 1), big.NewRat(maxPowBits, 1)); err == nil {
		t.Errorf("3 ^ %d succeeded", maxPowBits)
	}
	r, err := powRat(big.NewRat(-1, 1), big.NewRat(1<<40+1, 1))
	if err != nil || r.Cmp(big.NewRat(-1, 1)) != 0 {
		t.Errorf("-1 ^ odd = %v, %v", r, err)
	}
	r, err = powRat(big.NewRat(2, 1), big.NewRat(64, 1))
	if err != nil || r.Num().BitLen() != 65 {
		t.Errorf("2 ^ 64 = %v, %v", r, err)
	}
}

func TestTruthy(t *testing.T) {
	s := New(Config{}).NewState()
	tests := []struct {
		v    Value
		want bool
	}{
		{Null, false},
		{False, false},
		{True, true},
		{NumberFromInt(0), false},
		{NumberFromInt(3), true},
		{NewString(""), false},
		{NewString("x"), true},
		{NewList(), false},
		{NewList(Null), true},
	}
	for _, tt := range tests {
		got, err := s.Truthy(tt.v)
		if err != nil || got != tt.want {
			t.Errorf("Truthy(%s) = %v, %v", Repr(tt.v), got, err)
		}
	}
}
