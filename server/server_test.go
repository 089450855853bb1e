package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/imagestore"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// echo reads a line and writes it back.
func echo() *image.Program {
	s := memory.Address{Scope: memory.Global, Type: memory.String}
	return image.New("echo", []quad.Quad{
		{Op: quad.OpGoto, Result: quad.T(1)},
		{Op: quad.OpInit},
		{Op: quad.OpNParam, Left: quad.L(memory.StringValue("> "))},
		{Op: quad.OpNCall, Left: quad.N("read"), Result: quad.A(s)},
		{Op: quad.OpNParam, Left: quad.A(s)},
		{Op: quad.OpNCall, Left: quad.N("write")},
		{Op: quad.OpExit},
	}, false)
}

func spin() *image.Program {
	return image.New("spin", []quad.Quad{
		{Op: quad.OpInit},
		{Op: quad.OpGoto, Result: quad.T(0)},
	}, false)
}

func divideByZero() *image.Program {
	g := memory.Address{Scope: memory.Global, Type: memory.Int}
	return image.New("div", []quad.Quad{
		{Op: quad.OpInit},
		{Op: quad.OpIDiv, Left: quad.L(memory.IntValue(1)), Right: quad.L(memory.IntValue(0)), Result: quad.A(g)},
		{Op: quad.OpExit},
	}, false)
}

func startServer(t *testing.T, opts ...Option) *Client {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return NewClient(ts.Client(), ts.URL)
}

func openStore(t *testing.T) *imagestore.Store {
	t.Helper()
	store, err := imagestore.Open(filepath.Join(t.TempDir(), "images.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRunImage(t *testing.T) {
	c := startServer(t)
	res, err := c.RunImage(context.Background(), echo(), "hello\n")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Stdout != "> hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Steps != 7 {
		t.Errorf("steps = %d, want 7", res.Steps)
	}
	want, _ := image.Hash(echo())
	if res.Hash != image.HashString(want) {
		t.Errorf("hash = %s", res.Hash)
	}

	info, err := c.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Success || info.Steps != 7 || info.Hash != res.Hash {
		t.Errorf("run info = %+v", info)
	}
}

func TestRuntimeErrorIsReported(t *testing.T) {
	c := startServer(t)
	res, err := c.RunImage(context.Background(), divideByZero(), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("division by zero succeeded")
	}
	if res.ErrorKind != "runtime error" {
		t.Errorf("error kind = %q (%s)", res.ErrorKind, res.Error)
	}
}

func TestStepLimitIsCapped(t *testing.T) {
	c := startServer(t, WithMaxSteps(100))
	data, _ := image.Marshal(spin())
	res, err := c.Run(context.Background(), &RunRequest{Image: data, MaxSteps: 1_000_000})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Steps != 100 {
		t.Errorf("success = %v steps = %d, want failure after 100", res.Success, res.Steps)
	}
}

func TestRunByHash(t *testing.T) {
	c := startServer(t, WithStore(openStore(t)))
	data, _ := image.Marshal(echo())

	res, err := c.Run(context.Background(), &RunRequest{Image: data, Stdin: "a\n", Keep: true})
	if err != nil {
		t.Fatal(err)
	}
	res, err = c.Run(context.Background(), &RunRequest{Hash: res.Hash, Stdin: "b\n"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "> b\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	missing := strings.Repeat("00", 32)
	_, err = c.Run(context.Background(), &RunRequest{Hash: missing})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing hash err = %v", err)
	}
}

func TestRejectedRequests(t *testing.T) {
	c := startServer(t)
	data, _ := image.Marshal(echo())
	tests := []struct {
		name string
		req  *RunRequest
		code connect.Code
	}{
		{"empty", &RunRequest{}, connect.CodeInvalidArgument},
		{"both", &RunRequest{Image: data, Hash: "ab"}, connect.CodeInvalidArgument},
		{"garbage", &RunRequest{Image: []byte{0xff}}, connect.CodeInvalidArgument},
		{"hash without store", &RunRequest{Hash: strings.Repeat("00", 32)}, connect.CodeFailedPrecondition},
		{"keep without store", &RunRequest{Image: data, Keep: true}, connect.CodeFailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.req)
			if connect.CodeOf(err) != tt.code {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}

	_, err := c.GetRun(context.Background(), "nope")
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("GetRun err = %v", err)
	}
}

func TestPolicyDeniesNatives(t *testing.T) {
	c := startServer(t, WithPolicy(image.NewRestrictedPolicy([]string{"write"})))
	_, err := c.RunImage(context.Background(), echo(), "")
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

// ---------------------------------------------------------------------------
// Worker and run records
// ---------------------------------------------------------------------------

func TestWorkerRecoversPanics(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	_, err := w.Do(context.Background(), func() (any, error) { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
	v, err := w.Do(context.Background(), func() (any, error) { return 42, nil })
	if err != nil || v.(int) != 42 {
		t.Errorf("Do = %v, %v", v, err)
	}
}

func TestWorkerHonorsContext(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	started, release := make(chan struct{}), make(chan struct{})
	go w.Do(context.Background(), func() (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Do(ctx, func() (any, error) { return nil, nil })
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRunStoreSweep(t *testing.T) {
	s := NewRunStore()
	a := s.Start("a")
	b := s.Start("b")
	s.Finish(a.RunID, 3, nil)
	s.Finish(b.RunID, 1, errors.New("bad"))
	pending := s.Start("c")

	if got, _ := s.Get(b.RunID); got.Success || got.Error != "bad" {
		t.Errorf("failed run = %+v", got)
	}
	if n := len(s.List()); n != 3 {
		t.Errorf("List = %d runs", n)
	}

	if removed := s.Sweep(-time.Second); removed != 2 {
		t.Errorf("swept %d, want 2", removed)
	}
	if _, ok := s.Get(pending.RunID); !ok {
		t.Error("unfinished run was swept")
	}
}
