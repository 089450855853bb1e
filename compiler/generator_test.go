package compiler

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// ---------------------------------------------------------------------------
// Golden transcripts
// ---------------------------------------------------------------------------

func archiveFile(a *txtar.Archive, name string) (string, bool) {
	for _, f := range a.Files {
		if f.Name == name {
			return string(f.Data), true
		}
	}
	return "", false
}

func opNames(quads []quad.Quad) []string {
	names := make([]string, len(quads))
	for i, q := range quads {
		names[i] = q.Op.String()
	}
	return names
}

func TestGoldenTranscripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no golden transcripts found")
	}
	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			a, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			src, ok := archiveFile(a, "transcript.toml")
			if !ok {
				t.Fatal("archive has no transcript.toml")
			}
			tr, err := ReadTranscript(strings.NewReader(src))
			if err != nil {
				t.Fatal(err)
			}

			g := NewGenerator(Options{})
			if tr.Natives {
				if err := g.DeclareStandardNatives(); err != nil {
					t.Fatal(err)
				}
			}
			err = Replay(g, tr.Events)

			wantErr, expectErr := archiveFile(a, "error")
			switch {
			case expectErr && err == nil:
				t.Fatalf("expected %s, got success", strings.TrimSpace(wantErr))
			case expectErr && errs.KindOf(err).String() != strings.TrimSpace(wantErr):
				t.Fatalf("error = %v, want kind %s", err, strings.TrimSpace(wantErr))
			case !expectErr && err != nil:
				t.Fatal(err)
			}

			wantOps, _ := archiveFile(a, "ops")
			got := strings.Join(opNames(g.Program()), " ")
			if want := strings.Join(strings.Fields(wantOps), " "); got != want {
				var buf bytes.Buffer
				quad.Dump(&buf, g.Program())
				t.Errorf("ops:\n got %s\nwant %s\n%s", got, want, buf.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustReplay(t *testing.T, g *Generator, events ...Event) {
	t.Helper()
	if err := Replay(g, events); err != nil {
		t.Fatal(err)
	}
}

func ev(kind string, fields ...any) Event {
	e := Event{Kind: kind}
	for i := 0; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "name":
			e.Name = fields[i+1].(string)
		case "type":
			e.Type = fields[i+1].(string)
		case "value":
			e.Value = fields[i+1]
		case "op":
			e.Op = fields[i+1].(string)
		case "n":
			e.N = fields[i+1].(int)
		case "class":
			e.Class = fields[i+1].(string)
		case "dims":
			e.Dims = fields[i+1].([]int)
		}
	}
	return e
}

func find(quads []quad.Quad, op quad.Op) []int {
	var out []int
	for i, q := range quads {
		if q.Op == op {
			out = append(out, i)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestIfElseTargets(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_variable", "name", "a", "type", "int"),
		ev("declare_variable", "name", "b", "type", "int"),
		ev("declare_variable", "name", "x", "type", "int"),
		ev("init"),
		ev("push_delimiter"),
		ev("identifier", "name", "a"), ev("variable"),
		ev("identifier", "name", "b"), ev("variable"),
		ev("operator", "op", ">"),
		ev("conditional_jump"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("constant", "value", int64(1)),
		ev("assign"),
		ev("jump"),
		ev("patch_jump", "n", 1),
		ev("identifier", "name", "x"), ev("variable"),
		ev("constant", "value", int64(2)),
		ev("assign"),
		ev("patch_pending"),
		ev("exit"),
	)
	quads := g.Program()
	gotoF := find(quads, quad.OpGotoF)
	gotos := find(quads, quad.OpGoto)
	if len(gotoF) != 1 || len(gotos) != 2 {
		t.Fatalf("GOTO_F at %v, GOTO at %v", gotoF, gotos)
	}
	elseStart, _ := quads[gotoF[0]].Target()
	end, _ := quads[gotos[1]].Target()
	if elseStart != gotos[1]+1 {
		t.Errorf("GOTO_F target = %d, want else branch at %d", elseStart, gotos[1]+1)
	}
	if end != len(quads)-1 || quads[end].Op != quad.OpExit {
		t.Errorf("GOTO target = %d, want %d", end, len(quads)-1)
	}
	if entry, _ := quads[0].Target(); quads[entry].Op != quad.OpInit {
		t.Errorf("entry jump targets %s", quads[entry].Op)
	}
}

func TestPatchWithoutDelimiter(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{ev("init"), ev("jump"), ev("patch_pending")})
	if !errors.Is(err, errs.StructuralJump) {
		t.Fatalf("got %v, want structural jump error", err)
	}
}

func TestExitWithOpenConstruct(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{ev("init"), ev("push_delimiter"), ev("exit")})
	if !errors.Is(err, errs.StructuralJump) {
		t.Fatalf("got %v, want structural jump error", err)
	}
}

// ---------------------------------------------------------------------------
// Expressions and assignment
// ---------------------------------------------------------------------------

func TestFloatIntoIntTruncates(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_variable", "name", "x", "type", "int"),
		ev("init"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("constant", "value", 2.5),
		ev("assign"),
	)
	got := strings.Join(opNames(g.Program()), " ")
	if got != "GOTO INIT LOAD F2I STORE" {
		t.Errorf("ops = %s", got)
	}
}

func TestIntIntoFloatWidens(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_variable", "name", "f", "type", "float"),
		ev("init"),
		ev("identifier", "name", "f"), ev("variable"),
		ev("constant", "value", int64(2)),
		ev("assign"),
	)
	if got := strings.Join(opNames(g.Program()), " "); got != "GOTO INIT LOAD I2F STORE" {
		t.Errorf("ops = %s", got)
	}
}

func TestDivisionOpcode(t *testing.T) {
	tests := []struct {
		right any
		want  quad.Op
	}{
		{int64(2), quad.OpIDiv},
		{2.0, quad.OpFDiv},
	}
	for _, tt := range tests {
		g := NewGenerator(Options{})
		mustReplay(t, g,
			ev("init"),
			ev("constant", "value", int64(7)),
			ev("constant", "value", tt.right),
			ev("operator", "op", "/"),
		)
		last := g.Program()[len(g.Program())-1]
		if last.Op != tt.want {
			t.Errorf("7 / %v emitted %s, want %s", tt.right, last.Op, tt.want)
		}
	}
}

func TestCompoundAssignment(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_variable", "name", "x", "type", "int"),
		ev("init"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("constant", "value", int64(4)),
		ev("assign", "op", "+="),
	)
	if got := strings.Join(opNames(g.Program()), " "); got != "GOTO INIT LOAD ADD STORE" {
		t.Errorf("ops = %s", got)
	}
}

func TestOperatorTypeError(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{
		ev("init"),
		ev("constant", "value", "a"),
		ev("constant", "value", int64(1)),
		ev("operator", "op", "-"),
	})
	if !errors.Is(err, errs.Type) {
		t.Fatalf("got %v, want type error", err)
	}
}

func TestArrayIndexMustBeInt(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{
		ev("declare_variable", "name", "a", "type", "int", "dims", []int{3}),
		ev("init"),
		ev("identifier", "name", "a"),
		ev("constant", "value", 1.5),
		ev("variable", "n", 1),
	})
	if !errors.Is(err, errs.Type) {
		t.Fatalf("got %v, want type error", err)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestFunctionCallProtocol(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_function", "name", "add", "type", "int"),
		ev("declare_argument", "name", "x", "type", "int"),
		ev("declare_argument", "name", "y", "type", "int"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("identifier", "name", "y"), ev("variable"),
		ev("operator", "op", "+"),
		ev("return"),
		ev("close_function"),
		ev("declare_variable", "name", "r", "type", "int"),
		ev("init"),
		ev("identifier", "name", "r"), ev("variable"),
		ev("identifier", "name", "add"),
		ev("constant", "value", int64(1)),
		ev("constant", "value", int64(2)),
		ev("call"),
		ev("assign"),
		ev("exit"),
	)
	quads := g.Program()
	want := "GOTO ADD STORE RETURN INIT LOAD LOAD AIR PARAM PARAM CALL STORE STORE EXIT"
	if got := strings.Join(opNames(quads), " "); got != want {
		t.Fatalf("ops:\n got %s\nwant %s", got, want)
	}
	call := find(quads, quad.OpCall)[0]
	if target, _ := quads[call].Target(); target != 1 {
		t.Errorf("CALL target = %d, want 1", target)
	}
	params := find(quads, quad.OpParam)
	fn, err := g.Scope().ResolveFunction("add")
	if err != nil {
		t.Fatal(err)
	}
	for k, i := range params {
		if quads[i].Result.Addr != fn.Args[k].Address {
			t.Errorf("PARAM %d binds %s, want %s", k, quads[i].Result.Addr, fn.Args[k].Address)
		}
		if quads[i].Left.Addr != quads[5+k].Result.Addr {
			t.Errorf("PARAM %d passes %s, want argument %d", k, quads[i].Left.Addr, k)
		}
	}
	if got := quads[call+1].Left.Addr; got != *fn.Result {
		t.Errorf("result copied from %s, want %s", got, *fn.Result)
	}
}

func TestImplicitReturn(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   string
	}{
		{
			"empty body",
			[]Event{ev("declare_function", "name", "f"), ev("close_function")},
			"GOTO RETURN",
		},
		{
			"explicit return",
			[]Event{ev("declare_function", "name", "f"), ev("return"), ev("close_function")},
			"GOTO RETURN",
		},
		{
			"return inside if",
			[]Event{
				ev("declare_function", "name", "f"),
				ev("push_delimiter"),
				ev("constant", "value", true),
				ev("conditional_jump"),
				ev("return"),
				ev("patch_pending"),
				ev("close_function"),
			},
			"GOTO LOAD GOTO_F RETURN RETURN",
		},
	}
	for _, tt := range tests {
		g := NewGenerator(Options{})
		mustReplay(t, g, tt.events...)
		if got := strings.Join(opNames(g.Program()), " "); got != tt.want {
			t.Errorf("%s: ops = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestReturnTypeChecks(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
	}{
		{"value from void", []Event{
			ev("declare_function", "name", "f"),
			ev("constant", "value", int64(1)),
			ev("return"),
		}},
		{"missing value", []Event{
			ev("declare_function", "name", "f", "type", "int"),
			ev("return"),
		}},
		{"wrong type", []Event{
			ev("declare_function", "name", "f", "type", "int"),
			ev("constant", "value", "s"),
			ev("return"),
		}},
	}
	for _, tt := range tests {
		g := NewGenerator(Options{})
		if err := Replay(g, tt.events); !errors.Is(err, errs.Type) {
			t.Errorf("%s: got %v, want type error", tt.name, err)
		}
	}
}

func TestLocalsResetBetweenFunctions(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_function", "name", "f"),
		ev("declare_variable", "name", "a", "type", "int"),
		ev("close_function"),
		ev("declare_function", "name", "h"),
		ev("declare_variable", "name", "b", "type", "int"),
	)
	b, err := g.Scope().ResolveVariable("b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Address.Scope != memory.Local || b.Address.Offset != 0 {
		t.Errorf("b at %s, want LOCAL offset 0", b.Address)
	}
}

func TestRedeclaration(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{
		ev("declare_variable", "name", "x", "type", "int"),
		ev("declare_variable", "name", "x", "type", "float"),
	})
	if !errors.Is(err, errs.Redeclaration) {
		t.Fatalf("got %v, want redeclaration error", err)
	}
}

// ---------------------------------------------------------------------------
// Classes and objects
// ---------------------------------------------------------------------------

func pointDecl() []Event {
	return []Event{
		ev("declare_class", "name", "Point"),
		ev("declare_variable", "name", "x", "type", "int"),
		ev("declare_variable", "name", "y", "type", "int"),
		ev("declare_function", "name", "construct"),
		ev("declare_argument", "name", "a", "type", "int"),
		ev("declare_argument", "name", "b", "type", "int"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("identifier", "name", "a"), ev("variable"),
		ev("assign"),
		ev("identifier", "name", "y"), ev("variable"),
		ev("identifier", "name", "b"), ev("variable"),
		ev("assign"),
		ev("close_function"),
		ev("declare_function", "name", "sum", "type", "int"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("identifier", "name", "y"), ev("variable"),
		ev("operator", "op", "+"),
		ev("return"),
		ev("close_function"),
		ev("close_class"),
	}
}

func TestObjectCreationSequence(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g, pointDecl()...)
	mustReplay(t, g,
		ev("declare_variable", "name", "p", "class", "Point"),
		ev("init"),
		ev("identifier", "name", "p"), ev("variable"),
		ev("identifier", "name", "Point"),
		ev("constant", "value", int64(1)),
		ev("constant", "value", int64(2)),
		ev("new"),
		ev("assign"),
	)
	quads := g.Program()
	malloc := find(quads, quad.OpMalloc)
	if len(malloc) != 1 {
		t.Fatalf("MALLOC at %v", malloc)
	}
	m := malloc[0]
	if size := quads[m].Left.Lit.Int; size != 2 {
		t.Errorf("MALLOC size = %d, want 2", size)
	}
	seq := opNames(quads[m : m+6])
	if got := strings.Join(seq, " "); got != "MALLOC AIR PARAM PARAM PARAM CALL" {
		t.Fatalf("creation sequence = %s", got)
	}
	ctor, err := g.Scope().Class("Point")
	if err != nil {
		t.Fatal(err)
	}
	if quads[m+2].Left.Addr != quads[m].Result.Addr {
		t.Errorf("this bound to %s, want the new object %s", quads[m+2].Left.Addr, quads[m].Result.Addr)
	}
	if target, _ := quads[m+5].Target(); target != ctor.Constructor.Start {
		t.Errorf("CALL target = %d, want constructor start %d", target, ctor.Constructor.Start)
	}
}

func TestMemberAccessAndMethodCall(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g, pointDecl()...)
	mustReplay(t, g,
		ev("declare_variable", "name", "p", "class", "Point"),
		ev("declare_variable", "name", "s", "type", "int"),
		ev("init"),
		// p.x = 5
		ev("member", "name", "p"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("context_clear"),
		ev("constant", "value", int64(5)),
		ev("assign"),
		// s = p.sum()
		ev("identifier", "name", "s"), ev("variable"),
		ev("member", "name", "p"),
		ev("identifier", "name", "sum"),
		ev("call"),
		ev("context_clear"),
		ev("assign"),
	)
	quads := g.Program()
	p, err := g.Scope().ResolveVariable("p", 0)
	if err != nil {
		t.Fatal(err)
	}
	stores := find(quads, quad.OpAStore)
	last := quads[stores[len(stores)-1]]
	if last.Left.Addr != p.Address || last.Right.Lit.Int != 0 {
		t.Errorf("p.x store = %s, want base %s slot 0", quad.Format(last), p.Address)
	}
	calls := find(quads, quad.OpCall)
	call := calls[len(calls)-1]
	if quads[call-1].Op != quad.OpParam || quads[call-1].Left.Addr != p.Address {
		t.Errorf("method receiver = %s", quad.Format(quads[call-1]))
	}
	if g.Scope().Context() != nil {
		t.Error("context left set after the chain")
	}
}

func TestUnknownMember(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g, pointDecl()...)
	err := Replay(g, []Event{
		ev("declare_variable", "name", "p", "class", "Point"),
		ev("init"),
		ev("member", "name", "p"),
		ev("identifier", "name", "nope"),
		ev("variable"),
	})
	if !errors.Is(err, errs.UnresolvedAlias) {
		t.Fatalf("got %v, want unresolved alias", err)
	}
}

func TestArgumentsResolveOutsideMemberContext(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g, pointDecl()...)
	mustReplay(t, g,
		ev("declare_function", "name", "twice", "type", "int"),
		ev("declare_argument", "name", "v", "type", "int"),
		ev("identifier", "name", "v"), ev("variable"),
		ev("constant", "value", int64(2)),
		ev("operator", "op", "*"),
		ev("return"),
		ev("close_function"),
		ev("declare_variable", "name", "p", "class", "Point"),
		ev("declare_variable", "name", "n", "type", "int"),
		ev("init"),
		// p.x = twice(n)
		ev("member", "name", "p"),
		ev("identifier", "name", "x"), ev("variable"),
		ev("identifier", "name", "twice"),
		ev("identifier", "name", "n"), ev("variable"),
		ev("call"),
		ev("assign"),
	)
}

func twoClasses() []Event {
	return []Event{
		ev("declare_class", "name", "A"),
		ev("declare_variable", "name", "s", "type", "string"),
		ev("close_class"),
		ev("declare_class", "name", "B"),
		ev("declare_variable", "name", "n", "type", "int"),
		ev("close_class"),
		ev("declare_function", "name", "useB"),
		ev("declare_argument", "name", "o", "class", "B"),
		ev("close_function"),
		ev("declare_variable", "name", "a", "class", "A"),
		ev("declare_variable", "name", "b", "class", "B"),
		ev("declare_variable", "name", "b2", "class", "B"),
		ev("init"),
	}
}

func TestObjectClassMismatch(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		ok     bool
	}{
		{"assign same class", []Event{
			ev("identifier", "name", "b"), ev("variable"),
			ev("identifier", "name", "b2"), ev("variable"),
			ev("assign"),
		}, true},
		{"assign other class", []Event{
			ev("identifier", "name", "b"), ev("variable"),
			ev("identifier", "name", "a"), ev("variable"),
			ev("assign"),
		}, false},
		{"assign new object of other class", []Event{
			ev("identifier", "name", "b"), ev("variable"),
			ev("identifier", "name", "A"), ev("new"),
			ev("assign"),
		}, false},
		{"argument same class", []Event{
			ev("identifier", "name", "useB"),
			ev("identifier", "name", "b"), ev("variable"),
			ev("call"),
		}, true},
		{"argument other class", []Event{
			ev("identifier", "name", "useB"),
			ev("identifier", "name", "a"), ev("variable"),
			ev("call"),
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(Options{})
			mustReplay(t, g, twoClasses()...)
			before := g.store.Len()
			err := Replay(g, tt.events)
			if tt.ok {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if !errors.Is(err, errs.Type) {
				t.Fatalf("err = %v, want type error", err)
			}
			for _, q := range g.Program()[before:] {
				if q.Op == quad.OpStore || q.Op == quad.OpCall {
					t.Errorf("emitted %s after the type error", q)
				}
			}
		})
	}
}

// while (i < 3) {
//   if (i == 0) { r = r * 10 + 1; } elif (i == 1) { r = r * 10 + 2; } else { r = r * 10 + 3; }
//   i = i + 1;
// }
func nestedBranchesInLoop() []Event {
	arm := func(d int64) []Event {
		return []Event{
			ev("identifier", "name", "r"), ev("variable"),
			ev("identifier", "name", "r"), ev("variable"),
			ev("constant", "value", int64(10)),
			ev("operator", "op", "*"),
			ev("constant", "value", d),
			ev("operator", "op", "+"),
			ev("assign"),
		}
	}
	cond := func(k int64) []Event {
		return []Event{
			ev("identifier", "name", "i"), ev("variable"),
			ev("constant", "value", k),
			ev("operator", "op", "=="),
			ev("conditional_jump"),
		}
	}
	var events []Event
	add := func(es ...Event) { events = append(events, es...) }
	add(
		ev("declare_variable", "name", "i", "type", "int"),
		ev("declare_variable", "name", "r", "type", "int"),
		ev("init"),
		ev("push_delimiter"),
		ev("loop_start"),
		ev("identifier", "name", "i"), ev("variable"),
		ev("constant", "value", int64(3)),
		ev("operator", "op", "<"),
		ev("conditional_jump"),
		ev("push_delimiter"),
	)
	add(cond(0)...)
	add(arm(1)...)
	add(ev("jump"), ev("patch_jump", "n", 1))
	add(cond(1)...)
	add(arm(2)...)
	add(ev("jump"), ev("patch_jump", "n", 1))
	add(arm(3)...)
	add(
		ev("patch_pending"),
		ev("identifier", "name", "i"), ev("variable"),
		ev("identifier", "name", "i"), ev("variable"),
		ev("constant", "value", int64(1)),
		ev("operator", "op", "+"),
		ev("assign"),
		ev("loop_jump", "n", 1),
		ev("patch_pending"),
		ev("exit"),
	)
	return events
}

func TestNestedBranchTargets(t *testing.T) {
	g := NewGenerator(Options{})
	mustReplay(t, g, nestedBranchesInLoop()...)
	quads := g.Program()

	gotoF := find(quads, quad.OpGotoF)
	gotos := find(quads, quad.OpGoto)[1:] // skip the entry jump
	if len(gotoF) != 3 || len(gotos) != 3 {
		t.Fatalf("GOTO_F at %v, GOTO at %v", gotoF, gotos)
	}
	loopExit, ifArm, elifArm := gotoF[0], gotoF[1], gotoF[2]
	endIf, endElif, back := gotos[0], gotos[1], gotos[2]
	target := func(i int) int {
		t.Helper()
		tgt, ok := quads[i].Target()
		if !ok || tgt < 0 || tgt >= len(quads) {
			t.Fatalf("quad %d (%s) has target %d", i, quads[i], tgt)
		}
		return tgt
	}

	entry := find(quads, quad.OpInit)[0]
	if got := target(back); got != entry+1 {
		t.Errorf("loop jump target = %d, want loop head %d", got, entry+1)
	}
	if got := target(loopExit); got != back+1 || quads[got].Op != quad.OpExit {
		t.Errorf("loop exit target = %d, want %d (EXIT)", got, back+1)
	}
	if got := target(ifArm); got != endIf+1 {
		t.Errorf("if condition target = %d, want elif test at %d", got, endIf+1)
	}
	if got := target(elifArm); got != endElif+1 {
		t.Errorf("elif condition target = %d, want else arm at %d", got, endElif+1)
	}
	join := target(endIf)
	if target(endElif) != join {
		t.Errorf("arm exits disagree: %d and %d", join, target(endElif))
	}
	if join <= endElif+1 || join >= back {
		t.Errorf("arm exit target = %d, want between the else arm (%d) and the loop jump (%d)", join, endElif+1, back)
	}
	if g.jumps.Len() != 0 {
		t.Errorf("%d backpatch entries left", g.jumps.Len())
	}
}

func TestCloseFunctionWithLeftoverOperand(t *testing.T) {
	g := NewGenerator(Options{})
	err := Replay(g, []Event{
		ev("declare_function", "name", "f", "type", "int"),
		ev("constant", "value", int64(1)),
		ev("return"),
		ev("constant", "value", int64(2)),
		ev("close_function"),
	})
	if !errors.Is(err, errs.StructuralJump) || !strings.Contains(err.Error(), `"f"`) {
		t.Fatalf("got %v, want structural error naming f", err)
	}

	g = NewGenerator(Options{})
	mustReplay(t, g,
		ev("declare_function", "name", "f", "type", "int"),
		ev("constant", "value", int64(1)),
		ev("return"),
		ev("constant", "value", int64(2)),
		ev("expression"),
		ev("close_function"),
	)
}
