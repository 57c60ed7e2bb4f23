package vm

import (
	"math"
	"math/big"
	"strings"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

var (
	bigTwo  = big.NewInt(2)
	bigFive = big.NewInt(5)
	bigOne  = big.NewInt(1)
)

// ParseNumber parses a numeric literal or numeric string.
func ParseNumber(text string) (*Number, bool) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(text))
	if !ok {
		return nil, false
	}
	return NewNumber(r), true
}

// formatNumber renders an integer as digits, a rational with a
// terminating expansion as an exact decimal, and anything else as a/b.
func formatNumber(n *Number) string {
	r := n.r
	if r.IsInt() {
		return r.Num().String()
	}
	den := new(big.Int).Set(r.Denom())
	twos, fives := 0, 0
	m := new(big.Int)
	for {
		if m.Mod(den, bigTwo).Sign() != 0 {
			break
		}
		den.Quo(den, bigTwo)
		twos++
	}
	for {
		if m.Mod(den, bigFive).Sign() != 0 {
			break
		}
		den.Quo(den, bigFive)
		fives++
	}
	if den.Cmp(bigOne) != 0 {
		return r.Num().String() + "/" + r.Denom().String()
	}
	digits := twos
	if fives > digits {
		digits = fives
	}
	return r.FloatString(digits)
}

// floorRat rounds toward negative infinity. Denominators are always
// positive, so Euclidean division is floor division.
func floorRat(r *big.Rat) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).Div(r.Num(), r.Denom()))
}

// maxPowBits bounds the estimated size of an exact integer power.
const maxPowBits = 1 << 24

// magnitudeBits is the bit length of x, or 0 when |x| <= 1 so that powers
// of 0, 1 and -1 are never refused.
func magnitudeBits(x *big.Int) uint64 {
	if x.CmpAbs(bigOne) <= 0 {
		return 0
	}
	return uint64(x.BitLen())
}

// powRat raises base to exp. Integer exponents are exact; anything else
// goes through float64.
func powRat(base, exp *big.Rat) (*big.Rat, *arerr.Error) {
	if exp.IsInt() && exp.Num().IsInt64() {
		e := exp.Num().Int64()
		neg := e < 0
		if neg {
			if base.Sign() == 0 {
				return nil, errPow(base, exp, "not a number")
			}
			e = -e
		}
		if bits := magnitudeBits(base.Num()) + magnitudeBits(base.Denom()); bits > 0 && uint64(e) > maxPowBits/bits {
			return nil, errPow(base, exp, "too large")
		}
		num := new(big.Int).Exp(base.Num(), big.NewInt(e), nil)
		den := new(big.Int).Exp(base.Denom(), big.NewInt(e), nil)
		out := new(big.Rat).SetFrac(num, den)
		if neg {
			out.Inv(out)
		}
		return out, nil
	}
	bf, _ := base.Float64()
	ef, _ := exp.Float64()
	f := math.Pow(bf, ef)
	if math.IsInf(f, 0) {
		return nil, errPow(base, exp, "too large")
	}
	if math.IsNaN(f) {
		return nil, errPow(base, exp, "not a number")
	}
	out, ok := new(big.Rat).SetString(big.NewFloat(f).Text('g', -1))
	if !ok {
		return nil, errPow(base, exp, "not a number")
	}
	return out, nil
}

func errPow(base, exp *big.Rat, what string) *arerr.Error {
	return arerr.New(arerr.Runtime, "result of %s ^ %s is %s", base.RatString(), exp.RatString(), what)
}

func numberOp(op bytecode.BinaryOp, a, b *big.Rat) (Value, *arerr.Error) {
	switch op {
	case bytecode.BinAdd:
		return NewNumber(new(big.Rat).Add(a, b)), nil
	case bytecode.BinSub:
		return NewNumber(new(big.Rat).Sub(a, b)), nil
	case bytecode.BinMul:
		return NewNumber(new(big.Rat).Mul(a, b)), nil
	case bytecode.BinDiv, bytecode.BinFloorDiv, bytecode.BinMod:
		if b.Sign() == 0 {
			return nil, arerr.New(arerr.Runtime, "division by zero")
		}
		q := new(big.Rat).Quo(a, b)
		switch op {
		case bytecode.BinDiv:
			return NewNumber(q), nil
		case bytecode.BinFloorDiv:
			return NewNumber(floorRat(q)), nil
		}
		// a - b*floor(a/b), so the result takes the sign of b.
		return NewNumber(new(big.Rat).Sub(a, new(big.Rat).Mul(b, floorRat(q)))), nil
	case bytecode.BinPow:
		r, err := powRat(a, b)
		if err != nil {
			return nil, err
		}
		return NewNumber(r), nil
	case bytecode.BinLt:
		return Bool(a.Cmp(b) < 0), nil
	case bytecode.BinLe:
		return Bool(a.Cmp(b) <= 0), nil
	case bytecode.BinGt:
		return Bool(a.Cmp(b) > 0), nil
	case bytecode.BinGe:
		return Bool(a.Cmp(b) >= 0), nil
	}
	return nil, nil
}

func stringOp(op bytecode.BinaryOp, a, b string) (Value, bool) {
	switch op {
	case bytecode.BinAdd:
		return NewString(a + b), true
	case bytecode.BinLt:
		return Bool(a < b), true
	case bytecode.BinLe:
		return Bool(a <= b), true
	case bytecode.BinGt:
		return Bool(a > b), true
	case bytecode.BinGe:
		return Bool(a >= b), true
	}
	return nil, false
}

// maxRepeat bounds the length of a string or list built by repetition.
const maxRepeat = 1 << 26

// repeatCount converts n to a repetition count for a sequence of length
// size. It fails when the result would exceed maxRepeat elements.
func repeatCount(n *Number, size int) (int, bool) {
	c, ok := n.Int64()
	if !ok || c > maxRepeat {
		return 0, false
	}
	if c <= 0 || size == 0 {
		return 0, true
	}
	if c > maxRepeat/int64(size) {
		return 0, false
	}
	return int(c), true
}

// ---------------------------------------------------------------------------
// Binary operations
// ---------------------------------------------------------------------------

// BinaryOp applies op to a and b. Errors are unlocated; the caller pins
// them to the instruction's source span.
func (s *State) BinaryOp(op bytecode.BinaryOp, a, b Value) (Value, error) {
	switch op {
	case bytecode.BinEq:
		eq, err := s.Equal(a, b)
		return Bool(eq), err
	case bytecode.BinNe:
		eq, err := s.Equal(a, b)
		return Bool(!eq), err
	}

	switch x := a.(type) {
	case *Number:
		if y, ok := b.(*Number); ok {
			v, err := numberOp(op, x.r, y.r)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
	case *String:
		switch y := b.(type) {
		case *String:
			if v, ok := stringOp(op, x.Data, y.Data); ok {
				return v, nil
			}
		case *Number:
			if op == bytecode.BinMul {
				n, ok := repeatCount(y, len(x.Data))
				if !ok {
					return nil, arerr.New(arerr.Runtime, "cannot repeat a string %s times", formatNumber(y))
				}
				return NewString(strings.Repeat(x.Data, n)), nil
			}
		}
	case *List:
		switch y := b.(type) {
		case *List:
			if op == bytecode.BinAdd {
				return NewList(append(x.Items(), y.Items()...)...), nil
			}
		case *Number:
			if op == bytecode.BinMul {
				items := x.Items()
				n, ok := repeatCount(y, len(items))
				if !ok {
					return nil, arerr.New(arerr.Runtime, "cannot repeat a list %s times", formatNumber(y))
				}
				out := make([]Value, 0, len(items)*n)
				for i := 0; i < n; i++ {
					out = append(out, items...)
				}
				return NewList(out...), nil
			}
		}
	}
	return nil, arerr.New(arerr.Runtime, "unsupported operand types for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

// Negate returns -v for numbers.
func (s *State) Negate(v Value) (Value, error) {
	if n, ok := v.(*Number); ok {
		return NewNumber(new(big.Rat).Neg(n.r)), nil
	}
	return nil, arerr.New(arerr.Runtime, "bad operand type for unary -: '%s'", v.TypeName())
}

// ---------------------------------------------------------------------------
// Equality, truthiness, conversion
// ---------------------------------------------------------------------------

// Equal compares two values. Numbers, strings and booleans compare by
// value, lists element-wise, everything else by identity. A pair of lists
// met again while it is still being compared counts as equal, so cyclic
// lists terminate.
func (s *State) Equal(a, b Value) (bool, error) {
	return s.equal(a, b, nil)
}

func (s *State) equal(a, b Value, seen map[[2]*List]bool) (bool, error) {
	switch x := a.(type) {
	case NullType:
		_, ok := b.(NullType)
		return ok, nil
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y, nil
	case *Number:
		y, ok := b.(*Number)
		return ok && x.r.Cmp(y.r) == 0, nil
	case *String:
		y, ok := b.(*String)
		return ok && x.Data == y.Data, nil
	case *List:
		y, ok := b.(*List)
		if !ok {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		xs, ys := x.Items(), y.Items()
		if len(xs) != len(ys) {
			return false, nil
		}
		pair := [2]*List{x, y}
		if seen[pair] {
			return true, nil
		}
		if seen == nil {
			seen = make(map[[2]*List]bool)
		}
		seen[pair] = true
		for i := range xs {
			eq, err := s.equal(xs[i], ys[i], seen)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *BoundMethod:
		y, ok := b.(*BoundMethod)
		if !ok {
			return false, nil
		}
		eq, err := s.equal(x.Self, y.Self, seen)
		return eq && x.Fn == y.Fn, err
	}
	return a == b, nil
}

// Truthy reports whether v counts as true. Objects may override this with
// a __boolean__ method.
func (s *State) Truthy(v Value) (bool, error) {
	switch x := v.(type) {
	case NullType:
		return false, nil
	case Bool:
		return bool(x), nil
	case *Number:
		return x.r.Sign() != 0, nil
	case *String:
		return x.Data != "", nil
	case *List:
		return x.Len() > 0, nil
	case *Object:
		if x.Kind != KindInstance {
			return true, nil
		}
		m, ok, err := s.method(x, SlotBoolean)
		if err != nil || !ok {
			return true, err
		}
		out, err := s.Call(m, nil)
		if err != nil {
			return false, err
		}
		b, ok := out.(Bool)
		if !ok {
			return false, arerr.New(arerr.Runtime, "__boolean__ returned '%s', not a boolean", out.TypeName())
		}
		return bool(b), nil
	}
	return true, nil
}

// Str converts v to its display string. Instances may override this with
// a __string__ method.
func (s *State) Str(v Value) (string, error) {
	return s.str(v, nil)
}

// str renders v, tracking the lists currently being rendered in seen. A
// list that contains itself, directly or through other lists, renders as
// [...] at the point it recurs.
func (s *State) str(v Value, seen map[*List]bool) (string, error) {
	switch x := v.(type) {
	case *String:
		return x.Data, nil
	case *Object:
		if x.Kind == KindInstance {
			m, ok, err := s.method(x, SlotString)
			if err != nil {
				return "", err
			}
			if ok {
				out, err := s.Call(m, nil)
				if err != nil {
					return "", err
				}
				str, ok := out.(*String)
				if !ok {
					return "", arerr.New(arerr.Runtime, "__string__ returned '%s', not a string", out.TypeName())
				}
				return str.Data, nil
			}
		}
	case *List:
		if seen[x] {
			return "[...]", nil
		}
		if seen == nil {
			seen = make(map[*List]bool)
		}
		seen[x] = true
		defer delete(seen, x)

		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range x.Items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			if str, ok := item.(*String); ok {
				sb.WriteString(quote(str.Data))
				continue
			}
			part, err := s.str(item, seen)
			if err != nil {
				return "", err
			}
			sb.WriteString(part)
		}
		sb.WriteByte(']')
		return sb.String(), nil
	}
	return repr(v, seen), nil
}

// Repr renders v without invoking user code.
func Repr(v Value) string {
	return repr(v, nil)
}

func repr(v Value, seen map[*List]bool) string {
	switch x := v.(type) {
	case NullType:
		return "null"
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case *Number:
		return formatNumber(x)
	case *String:
		return quote(x.Data)
	case *List:
		if seen[x] {
			return "[...]"
		}
		if seen == nil {
			seen = make(map[*List]bool)
		}
		seen[x] = true
		defer delete(seen, x)

		items := x.Items()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = repr(item, seen)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Range:
		return "range(" + x.Start.RatString() + ", " + x.Stop.RatString() + ", " + x.Step.RatString() + ")"
	case *Function:
		if x.Name == "" {
			return "<function>"
		}
		return "<function " + x.Name + ">"
	case *NativeFunction:
		return "<native function " + x.Name + ">"
	case *BoundMethod:
		return "<method " + strings.Trim(repr(x.Fn, seen), "<>") + ">"
	case *Object:
		switch x.Kind {
		case KindClass:
			return "<class " + x.Name() + ">"
		case KindModule:
			return "<module " + x.Name() + ">"
		}
		return "<" + x.TypeName() + " object>"
	}
	return "<" + v.TypeName() + ">"
}

func quote(s string) string {
	return "'" + strings.NewReplacer("\\", "\\\\", "'", "\\'", "\n", "\\n", "\t", "\\t").Replace(s) + "'"
}
