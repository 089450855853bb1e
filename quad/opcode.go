// Package quad defines the three-address instruction format shared by the
// compiler, the optimizer and the virtual machine.
package quad

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Op is an opcode or an operator. Operators double as opcodes for the
// arithmetic/logical instructions they produce.
type Op uint8

// Control flow
const (
	OpNop   Op = 0x00
	OpGoto  Op = 0x01 // unconditional jump, target in result
	OpGotoT Op = 0x02 // jump when left is truthy
	OpGotoF Op = 0x03 // jump when left is falsy
	OpInit  Op = 0x04 // program entry marker
	OpExit  Op = 0x05 // halt
)

// Data movement
const (
	OpLoad   Op = 0x10 // literal left -> result
	OpStore  Op = 0x11 // left -> result
	OpALoad  Op = 0x12 // cell(left base, right index) -> result
	OpAStore Op = 0x13 // result -> cell(left base, right index)
	OpMalloc Op = 0x14 // allocate left cells on the heap, pointer -> result
	OpF2I    Op = 0x15 // truncate right into result
	OpI2F    Op = 0x16 // widen right into result
)

// Calls
const (
	OpAir    Op = 0x20 // open an activation record
	OpParam  Op = 0x21 // bind left to formal argument result
	OpCall   Op = 0x22 // call, target in result
	OpReturn Op = 0x23 // return to caller
	OpNParam Op = 0x24 // buffer left for a native call
	OpNCall  Op = 0x25 // call native named left, value -> result
)

// Operators
const (
	OpOr     Op = 0x30 // ||
	OpAnd    Op = 0x31 // &&
	OpBitOr  Op = 0x32 // |
	OpBitXor Op = 0x33 // ^
	OpBitAnd Op = 0x34 // &
	OpEq     Op = 0x35 // ==
	OpNe     Op = 0x36 // !=
	OpGt     Op = 0x37 // >
	OpGe     Op = 0x38 // >=
	OpLt     Op = 0x39 // <
	OpLe     Op = 0x3A // <=
	OpShl    Op = 0x3B // <<
	OpShr    Op = 0x3C // >>
	OpAdd    Op = 0x3D // +
	OpSub    Op = 0x3E // -
	OpMul    Op = 0x3F // *
	OpDiv    Op = 0x40 // / (source level; emitted as IDIV or FDIV)
	OpMod    Op = 0x41 // %
	OpAssign Op = 0x42 // =
	OpNot    Op = 0x43 // !
	OpBitNot Op = 0x44 // ~
	OpIDiv   Op = 0x45 // truncating integer division
	OpFDiv   Op = 0x46 // floating point division
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpInfo holds metadata about an opcode.
type OpInfo struct {
	Name   string // mnemonic used in dumps
	Symbol string // source-level spelling for operators
	Arity  int    // operand count for operators, 0 otherwise
}

var opTable = map[Op]OpInfo{
	OpNop:   {"NOP", "", 0},
	OpGoto:  {"GOTO", "", 0},
	OpGotoT: {"GOTO_T", "", 0},
	OpGotoF: {"GOTO_F", "", 0},
	OpInit:  {"INIT", "", 0},
	OpExit:  {"EXIT", "", 0},

	OpLoad:   {"LOAD", "", 0},
	OpStore:  {"STORE", "", 0},
	OpALoad:  {"ALOAD", "", 0},
	OpAStore: {"ASTORE", "", 0},
	OpMalloc: {"MALLOC", "", 0},
	OpF2I:    {"F2I", "", 1},
	OpI2F:    {"I2F", "", 1},

	OpAir:    {"AIR", "", 0},
	OpParam:  {"PARAM", "", 0},
	OpCall:   {"CALL", "", 0},
	OpReturn: {"RETURN", "", 0},
	OpNParam: {"NPARAM", "", 0},
	OpNCall:  {"NCALL", "", 0},

	OpOr:     {"OR", "||", 2},
	OpAnd:    {"AND", "&&", 2},
	OpBitOr:  {"BOR", "|", 2},
	OpBitXor: {"BXOR", "^", 2},
	OpBitAnd: {"BAND", "&", 2},
	OpEq:     {"EQ", "==", 2},
	OpNe:     {"NE", "!=", 2},
	OpGt:     {"GT", ">", 2},
	OpGe:     {"GE", ">=", 2},
	OpLt:     {"LT", "<", 2},
	OpLe:     {"LE", "<=", 2},
	OpShl:    {"SHL", "<<", 2},
	OpShr:    {"SHR", ">>", 2},
	OpAdd:    {"ADD", "+", 2},
	OpSub:    {"SUB", "-", 2},
	OpMul:    {"MUL", "*", 2},
	OpDiv:    {"DIV", "/", 2},
	OpMod:    {"MOD", "%", 2},
	OpAssign: {"ASSIGN", "=", 2},
	OpNot:    {"NOT", "!", 1},
	OpBitNot: {"BNOT", "~", 1},
	OpIDiv:   {"IDIV", "/", 2},
	OpFDiv:   {"FDIV", "/", 2},
}

// symbolTable maps source spellings to operators. IDIV/FDIV are reached
// through OpDiv only.
var symbolTable = func() map[string]Op {
	m := make(map[string]Op)
	for op, info := range opTable {
		if info.Symbol != "" && op != OpIDiv && op != OpFDiv {
			m[info.Symbol] = op
		}
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Op) Info() OpInfo {
	if info, ok := opTable[op]; ok {
		return info
	}
	return OpInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

func (op Op) String() string {
	return op.Info().Name
}

// Arity returns how many operands an operator pops; 0 for non-operators.
func (op Op) Arity() int {
	return op.Info().Arity
}

// IsOperator reports whether op is an arithmetic, logical or comparison
// operator (including the typed division opcodes).
func (op Op) IsOperator() bool {
	return op >= OpOr && op <= OpFDiv
}

// IsJump reports whether the result field holds a jump target.
func (op Op) IsJump() bool {
	return op == OpGoto || op == OpGotoT || op == OpGotoF
}

// HasTarget reports whether the result field holds an instruction index.
func (op Op) HasTarget() bool {
	return op.IsJump() || op == OpCall
}

// ParseOperator maps a source-level operator spelling to its Op.
func ParseOperator(symbol string) (Op, error) {
	if op, ok := symbolTable[symbol]; ok {
		return op, nil
	}
	return OpNop, fmt.Errorf("unknown operator %q", symbol)
}
