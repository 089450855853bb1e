package quad

import (
	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
)

// ---------------------------------------------------------------------------
// Type-transition table
// ---------------------------------------------------------------------------

type transition struct {
	left, right memory.DataType
	op          Op
}

type unaryTransition struct {
	operand memory.DataType
	op      Op
}

var (
	binaryTransitions = make(map[transition]memory.DataType)
	unaryTransitions  = make(map[unaryTransition]memory.DataType)
)

func init() {
	const (
		i = memory.Int
		f = memory.Float
		s = memory.String
		b = memory.Bool
		o = memory.Object
	)
	set := func(result memory.DataType, pairs [][2]memory.DataType, ops ...Op) {
		for _, p := range pairs {
			for _, op := range ops {
				binaryTransitions[transition{p[0], p[1], op}] = result
			}
		}
	}
	numeric := [][2]memory.DataType{{i, f}, {f, i}, {f, f}}
	truthy := [][2]memory.DataType{
		{i, i}, {i, f}, {f, i}, {f, f},
		{b, b}, {b, i}, {i, b}, {b, f}, {f, b},
	}

	set(i, [][2]memory.DataType{{i, i}}, OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpBitOr, OpBitXor, OpBitAnd, OpShl, OpShr)
	set(f, numeric, OpAdd, OpSub, OpMul, OpDiv, OpMod)
	set(b, truthy, OpOr, OpAnd, OpEq, OpNe)
	set(b, [][2]memory.DataType{{i, i}, {i, f}, {f, i}, {f, f}, {s, s}}, OpGt, OpGe, OpLt, OpLe)
	set(s, [][2]memory.DataType{{s, s}}, OpAdd)
	set(b, [][2]memory.DataType{{s, s}}, OpEq, OpNe)

	// Assignment is keyed (target, value). INT <- FLOAT truncates and
	// FLOAT <- INT widens; the generator emits the conversion.
	set(i, [][2]memory.DataType{{i, i}, {i, f}}, OpAssign)
	set(f, [][2]memory.DataType{{f, f}, {f, i}}, OpAssign)
	set(s, [][2]memory.DataType{{s, s}}, OpAssign)
	set(b, [][2]memory.DataType{{b, b}}, OpAssign)
	set(o, [][2]memory.DataType{{o, o}}, OpAssign)

	unaryTransitions[unaryTransition{i, OpBitNot}] = i
	unaryTransitions[unaryTransition{f, OpBitNot}] = f
	for _, t := range []memory.DataType{i, f, b} {
		unaryTransitions[unaryTransition{t, OpNot}] = b
	}
}

// ResultType returns the type produced by applying op to operands of the
// given types. Unary operators only look at left. Combinations absent from
// the table are type errors.
func ResultType(left, right memory.DataType, op Op) (memory.DataType, error) {
	if op.Arity() == 1 {
		if t, ok := unaryTransitions[unaryTransition{left, op}]; ok {
			return t, nil
		}
		return 0, errs.Newf(errs.KindType, "invalid operand %s to operator %q", left, op.Info().Symbol)
	}
	if t, ok := binaryTransitions[transition{left, right, op}]; ok {
		return t, nil
	}
	return 0, errs.Newf(errs.KindType, "invalid operands {%s, %s} to operator %q", left, right, op.Info().Symbol)
}
