package compiler

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// Transcript is a recorded sequence of semantic events, the form in which
// a front end hands a program to the generator out of process.
type Transcript struct {
	Name string `toml:"name"`
	// Natives declares the standard natives before the first event.
	Natives bool    `toml:"natives"`
	Events  []Event `toml:"event"`
}

// Event is one semantic event. Kind selects the Generator method; the
// other fields are its arguments.
type Event struct {
	Kind  string `toml:"kind"`
	Name  string `toml:"name,omitempty"`
	Type  string `toml:"type,omitempty"`
	Value any    `toml:"value,omitempty"`
	Dims  []int  `toml:"dims,omitempty"`
	Op    string `toml:"op,omitempty"`
	N     int    `toml:"n,omitempty"`
	Class string `toml:"class,omitempty"`
}

// ReadTranscript decodes a TOML transcript.
func ReadTranscript(r io.Reader) (*Transcript, error) {
	var t Transcript
	md, err := toml.NewDecoder(r).Decode(&t)
	if err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse transcript: unknown key %s", undecoded[0])
	}
	return &t, nil
}

// LoadTranscript reads a TOML transcript file.
func LoadTranscript(path string) (*Transcript, error) {
	var t Transcript
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if t.Name == "" {
		t.Name = path
	}
	return &t, nil
}

// Compile runs a transcript through a fresh Generator.
func Compile(t *Transcript, opts Options) ([]quad.Quad, error) {
	g := NewGenerator(opts)
	if t.Natives {
		if err := g.DeclareStandardNatives(); err != nil {
			return nil, err
		}
	}
	if err := Replay(g, t.Events); err != nil {
		return nil, err
	}
	return g.Program(), nil
}

// Replay delivers events to g in order, stopping at the first error.
func Replay(g *Generator, events []Event) error {
	for i, e := range events {
		log.Debugf("event %d: %s %s", i, e.Kind, e.Name)
		if err := dispatch(g, e); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, e.Kind, err)
		}
	}
	return nil
}

func dispatch(g *Generator, e Event) error {
	kind := strings.ToLower(e.Kind)
	switch kind {
	case "constant":
		v, err := e.literal()
		if err != nil {
			return err
		}
		return g.OnConstant(v)
	case "identifier":
		return g.OnIdentifier(e.Name)
	case "member":
		return g.OnMemberContext(e.Name)
	case "context_clear":
		return g.OnContextClear()
	case "variable":
		return g.OnVariableOperand(e.N)
	case "call":
		return g.OnFunctionCall()
	case "operator":
		op, err := quad.ParseOperator(e.Op)
		if err != nil {
			return err
		}
		return g.OnOperator(op)
	case "assign":
		op := quad.OpAssign
		if e.Op != "" && e.Op != "=" {
			var err error
			if op, err = quad.ParseOperator(strings.TrimSuffix(e.Op, "=")); err != nil {
				return err
			}
		}
		return g.OnAssignment(op)
	case "expression":
		return g.OnExpressionStatement()

	case "declare_variable":
		if e.Class != "" {
			return g.OnDeclareObject(e.Name, e.Class)
		}
		t, err := memory.ParseType(e.Type)
		if err != nil {
			return err
		}
		return g.OnDeclareVariable(e.Name, t, e.Dims)
	case "declare_argument":
		if e.Class != "" {
			return g.OnDeclareObjectArgument(e.Name, e.Class)
		}
		t, err := memory.ParseType(e.Type)
		if err != nil {
			return err
		}
		return g.OnDeclareArgument(e.Name, t, e.Dims)
	case "declare_function", "declare_native":
		t := memory.Void
		if e.Type != "" {
			var err error
			if t, err = memory.ParseType(e.Type); err != nil {
				return err
			}
		}
		if kind == "declare_native" {
			return g.OnDeclareNativeFunction(e.Name, t)
		}
		return g.OnDeclareFunction(e.Name, t)
	case "close_function":
		return g.OnCloseFunction()
	case "declare_class":
		return g.OnDeclareClass(e.Name)
	case "close_class":
		return g.OnCloseClass()
	case "new":
		return g.OnObjectCreation()
	case "return":
		return g.OnReturn()

	case "push_scope":
		return g.OnPushScope()
	case "pop_scope":
		return g.OnPopScope()
	case "push_delimiter":
		return g.OnPushJumpDelimiter()
	case "patch_pending":
		return g.OnPatchPendingJumps()
	case "conditional_jump":
		return g.OnConditionalJump()
	case "jump":
		return g.OnJump()
	case "patch_jump":
		return g.OnPatchJump(e.N)
	case "loop_start":
		return g.OnLoopStart()
	case "loop_jump":
		return g.OnLoopJump(e.N)
	case "init":
		return g.OnProgramInit()
	case "exit":
		return g.OnProgramExit()
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}

// literal converts the event value to a memory.Value. Without an explicit
// type the TOML value kind decides.
func (e Event) literal() (memory.Value, error) {
	var v memory.Value
	switch x := e.Value.(type) {
	case int64:
		v = memory.IntValue(x)
	case float64:
		v = memory.FloatValue(x)
	case string:
		v = memory.StringValue(x)
	case bool:
		v = memory.BoolValue(x)
	default:
		return memory.Value{}, fmt.Errorf("constant value %v of unsupported kind %T", e.Value, e.Value)
	}
	if e.Type == "" {
		return v, nil
	}
	t, err := memory.ParseType(e.Type)
	if err != nil {
		return memory.Value{}, err
	}
	if c := v.Coerce(t); c.Type == t {
		return c, nil
	}
	return memory.Value{}, fmt.Errorf("constant %v cannot be typed %s", e.Value, t)
}
