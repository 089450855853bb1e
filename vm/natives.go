package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
)

// Native is a host function reachable through NCALL. Arguments arrive in
// push order with whatever types the caller produced; natives coerce.
type Native interface {
	Execute(args []memory.Value) (memory.Value, error)
}

// NativeFunc adapts a plain function to Native.
type NativeFunc func(args []memory.Value) (memory.Value, error)

func (f NativeFunc) Execute(args []memory.Value) (memory.Value, error) { return f(args) }

// void is the result of natives that return nothing.
var void = memory.Zero(memory.Void)

// Registry maps native names to implementations.
type Registry struct {
	natives map[string]Native
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{natives: make(map[string]Native)}
}

// Register binds name to n, replacing any previous binding.
func (r *Registry) Register(name string, n Native) {
	r.natives[name] = n
}

// Lookup returns the native bound to name.
func (r *Registry) Lookup(name string) (Native, bool) {
	n, ok := r.natives[name]
	return n, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.natives))
	for name := range r.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Standard natives
// ---------------------------------------------------------------------------

// StandardRegistry returns the standard natives with console I/O bound to
// out and in.
func StandardRegistry(out io.Writer, in io.Reader) *Registry {
	c := &console{out: out, in: bufio.NewReader(in)}
	r := NewRegistry()

	r.Register("write", NativeFunc(c.write))
	r.Register("read", NativeFunc(c.read))
	r.Register("putchar", NativeFunc(c.putchar))
	r.Register("clear_console", NativeFunc(c.escape("\x1b[2J")))
	r.Register("cursor_home", NativeFunc(c.escape("\x1b[H")))

	r.Register("sin", unaryMath("sin", math.Sin))
	r.Register("cos", unaryMath("cos", math.Cos))
	r.Register("sqrt", unaryMath("sqrt", math.Sqrt))
	r.Register("pow", NativeFunc(func(args []memory.Value) (memory.Value, error) {
		if err := arity("pow", args, 2); err != nil {
			return void, err
		}
		return memory.FloatValue(math.Pow(args[0].AsFloat(), args[1].AsFloat())), nil
	}))
	r.Register("f2i", NativeFunc(func(args []memory.Value) (memory.Value, error) {
		if err := arity("f2i", args, 1); err != nil {
			return void, err
		}
		return memory.IntValue(args[0].AsInt()), nil
	}))

	r.Register("str_len", NativeFunc(func(args []memory.Value) (memory.Value, error) {
		if err := arity("str_len", args, 1); err != nil {
			return void, err
		}
		return memory.IntValue(int64(utf8.RuneCountInString(args[0].String()))), nil
	}))
	r.Register("str_to_int", NativeFunc(strToInt))
	r.Register("str_to_float", NativeFunc(strToFloat))
	return r
}

func arity(name string, args []memory.Value, n int) error {
	if len(args) < n {
		return errs.Newf(errs.KindRuntime, "%s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func unaryMath(name string, fn func(float64) float64) Native {
	return NativeFunc(func(args []memory.Value) (memory.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return void, err
		}
		return memory.FloatValue(fn(args[0].AsFloat())), nil
	})
}

// console is the terminal state shared by the I/O natives.
type console struct {
	out io.Writer
	in  *bufio.Reader
}

func (c *console) write(args []memory.Value) (memory.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	_, err := fmt.Fprintln(c.out, strings.Join(parts, " "))
	return void, err
}

func (c *console) putchar(args []memory.Value) (memory.Value, error) {
	if err := arity("putchar", args, 1); err != nil {
		return void, err
	}
	_, err := io.WriteString(c.out, args[0].String())
	return void, err
}

func (c *console) escape(seq string) func([]memory.Value) (memory.Value, error) {
	return func([]memory.Value) (memory.Value, error) {
		_, err := io.WriteString(c.out, seq)
		return void, err
	}
}

// read prints its optional prompt and returns one line of input without
// the line terminator. End of input yields the empty string.
func (c *console) read(args []memory.Value) (memory.Value, error) {
	if len(args) > 0 {
		if _, err := io.WriteString(c.out, args[0].String()); err != nil {
			return void, err
		}
	}
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return void, err
	}
	return memory.StringValue(strings.TrimRight(line, "\r\n")), nil
}

// strToInt parses the leading integer of its argument, ignoring trailing
// text: "42abc" is 42.
func strToInt(args []memory.Value) (memory.Value, error) {
	if err := arity("str_to_int", args, 1); err != nil {
		return void, err
	}
	s := strings.TrimSpace(args[0].String())
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return void, errs.Newf(errs.KindRuntime, "can't parse %q as an integer", args[0].String())
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return void, errs.Newf(errs.KindRuntime, "can't parse %q as an integer: %v", args[0].String(), err)
	}
	return memory.IntValue(n), nil
}

// strToFloat parses the longest numeric prefix of its argument.
func strToFloat(args []memory.Value) (memory.Value, error) {
	if err := arity("str_to_float", args, 1); err != nil {
		return void, err
	}
	s := strings.TrimSpace(args[0].String())
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return memory.FloatValue(f), nil
		}
	}
	return void, errs.Newf(errs.KindRuntime, "can't parse %q as a float", args[0].String())
}
