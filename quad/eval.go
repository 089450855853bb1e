package quad

import (
	"math"
	"strings"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
)

// ---------------------------------------------------------------------------
// Operator evaluation, shared by the VM and the constant folder
// ---------------------------------------------------------------------------

type evalFunc func(l, r memory.Value) (memory.Value, error)

var evalTable map[Op]evalFunc

func init() {
	evalTable = map[Op]evalFunc{
		OpAdd: arith(func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }),
		OpSub: arith(func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }),
		OpMul: arith(func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }),
		OpDiv: func(l, r memory.Value) (memory.Value, error) {
			if l.Type == memory.Float || r.Type == memory.Float {
				return evalTable[OpFDiv](l, r)
			}
			return evalTable[OpIDiv](l, r)
		},
		OpIDiv: func(l, r memory.Value) (memory.Value, error) {
			d := r.AsInt()
			if d == 0 {
				return memory.Value{}, errs.Newf(errs.KindRuntime, "integer division by zero")
			}
			return memory.IntValue(l.AsInt() / d), nil
		},
		OpFDiv: func(l, r memory.Value) (memory.Value, error) {
			return memory.FloatValue(l.AsFloat() / r.AsFloat()), nil
		},
		OpMod: func(l, r memory.Value) (memory.Value, error) {
			if l.Type == memory.Float || r.Type == memory.Float {
				return memory.FloatValue(math.Mod(l.AsFloat(), r.AsFloat())), nil
			}
			d := r.AsInt()
			if d == 0 {
				return memory.Value{}, errs.Newf(errs.KindRuntime, "integer modulo by zero")
			}
			return memory.IntValue(l.AsInt() % d), nil
		},

		OpBitOr:  bitwise(func(a, b int64) int64 { return a | b }),
		OpBitXor: bitwise(func(a, b int64) int64 { return a ^ b }),
		OpBitAnd: bitwise(func(a, b int64) int64 { return a & b }),
		OpShl:    bitwise(func(a, b int64) int64 { return a << uint64(b&63) }),
		OpShr:    bitwise(func(a, b int64) int64 { return a >> uint64(b&63) }),

		OpOr: func(l, r memory.Value) (memory.Value, error) {
			return memory.BoolValue(l.Truthy() || r.Truthy()), nil
		},
		OpAnd: func(l, r memory.Value) (memory.Value, error) {
			return memory.BoolValue(l.Truthy() && r.Truthy()), nil
		},

		OpEq: compare(func(c int) bool { return c == 0 }),
		OpNe: compare(func(c int) bool { return c != 0 }),
		OpGt: compare(func(c int) bool { return c > 0 }),
		OpGe: compare(func(c int) bool { return c >= 0 }),
		OpLt: compare(func(c int) bool { return c < 0 }),
		OpLe: compare(func(c int) bool { return c <= 0 }),

		OpNot: func(_, r memory.Value) (memory.Value, error) {
			return memory.BoolValue(!r.Truthy()), nil
		},
		OpBitNot: func(_, r memory.Value) (memory.Value, error) {
			// Floats are truncated before complementing.
			if r.Type == memory.Float {
				return memory.FloatValue(float64(^r.AsInt())), nil
			}
			return memory.IntValue(^r.AsInt()), nil
		},
		OpF2I: func(_, r memory.Value) (memory.Value, error) {
			return memory.IntValue(r.AsInt()), nil
		},
		OpI2F: func(_, r memory.Value) (memory.Value, error) {
			return memory.FloatValue(r.AsFloat()), nil
		},
	}
}

func arith(ints func(a, b int64) int64, floats func(a, b float64) float64) evalFunc {
	return func(l, r memory.Value) (memory.Value, error) {
		if l.Type == memory.String && r.Type == memory.String {
			return memory.StringValue(l.Str + r.Str), nil
		}
		if l.Type == memory.Float || r.Type == memory.Float {
			return memory.FloatValue(floats(l.AsFloat(), r.AsFloat())), nil
		}
		return memory.IntValue(ints(l.AsInt(), r.AsInt())), nil
	}
}

func bitwise(fn func(a, b int64) int64) evalFunc {
	return func(l, r memory.Value) (memory.Value, error) {
		return memory.IntValue(fn(l.AsInt(), r.AsInt())), nil
	}
}

func compare(pred func(c int) bool) evalFunc {
	return func(l, r memory.Value) (memory.Value, error) {
		var c int
		switch {
		case l.Type == memory.String && r.Type == memory.String:
			c = strings.Compare(l.Str, r.Str)
		case l.Type == memory.Object && r.Type == memory.Object:
			if l.Ptr != r.Ptr {
				c = 1
			}
		case l.Type == memory.Float || r.Type == memory.Float:
			a, b := l.AsFloat(), r.AsFloat()
			switch {
			case a < b:
				c = -1
			case a > b:
				c = 1
			}
		default:
			a, b := l.AsInt(), r.AsInt()
			switch {
			case a < b:
				c = -1
			case a > b:
				c = 1
			}
		}
		return memory.BoolValue(pred(c)), nil
	}
}

// Pure reports whether op has a side-effect free evaluation function, which
// makes it a constant folding candidate.
func Pure(op Op) bool {
	_, ok := evalTable[op]
	return ok
}

// Eval applies op to l and r. Unary operators read r only.
func Eval(op Op, l, r memory.Value) (memory.Value, error) {
	fn, ok := evalTable[op]
	if !ok {
		return memory.Value{}, errs.Newf(errs.KindRuntime, "no evaluation for %s", op)
	}
	return fn(l, r)
}
