package compiler

import (
	"github.com/chazu/quadra/memory"
)

// NativeSignature describes a host function as seen by the compiler.
type NativeSignature struct {
	Name   string
	Return memory.DataType
	Params []memory.DataType
}

// StandardNatives lists the natives every VM registry provides.
var StandardNatives = []NativeSignature{
	{"write", memory.Void, []memory.DataType{memory.String}},
	{"read", memory.String, []memory.DataType{memory.String}},
	{"putchar", memory.Void, []memory.DataType{memory.String}},
	{"clear_console", memory.Void, nil},
	{"cursor_home", memory.Void, nil},
	{"sin", memory.Float, []memory.DataType{memory.Float}},
	{"cos", memory.Float, []memory.DataType{memory.Float}},
	{"sqrt", memory.Float, []memory.DataType{memory.Float}},
	{"pow", memory.Float, []memory.DataType{memory.Float, memory.Float}},
	{"f2i", memory.Int, []memory.DataType{memory.Float}},
	{"str_len", memory.Int, []memory.DataType{memory.String}},
	{"str_to_int", memory.Int, []memory.DataType{memory.String}},
	{"str_to_float", memory.Float, []memory.DataType{memory.String}},
}

// DeclareNatives declares each signature in the root scope.
func (g *Generator) DeclareNatives(sigs []NativeSignature) error {
	for _, sig := range sigs {
		if err := g.OnDeclareNativeFunction(sig.Name, sig.Return); err != nil {
			return err
		}
		for i, p := range sig.Params {
			if err := g.OnDeclareArgument(paramName(i), p, nil); err != nil {
				return err
			}
		}
		if err := g.OnCloseFunction(); err != nil {
			return err
		}
	}
	return nil
}

// DeclareStandardNatives declares StandardNatives.
func (g *Generator) DeclareStandardNatives() error {
	return g.DeclareNatives(StandardNatives)
}

func paramName(i int) string {
	return string(rune('a' + i))
}
