package imagestore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "images.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func program(n int64) *image.Program {
	g := memory.Address{Scope: memory.Global, Type: memory.Int}
	return image.New("p", []quad.Quad{
		{Op: quad.OpGoto, Result: quad.T(1)},
		{Op: quad.OpInit},
		{Op: quad.OpStore, Left: quad.L(memory.IntValue(n)), Result: quad.A(g)},
		{Op: quad.OpExit},
	}, false)
}

func TestPutGet(t *testing.T) {
	s := openStore(t)
	p := program(1)

	h, err := s.Put(p)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want, _ := image.Hash(p)
	if h != want {
		t.Errorf("Put hash = %s, want %s", image.HashString(h), image.HashString(want))
	}

	// Idempotent.
	if h2, err := s.Put(program(1)); err != nil || h2 != h {
		t.Errorf("second Put = %s, %v", image.HashString(h2), err)
	}

	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Quads) != 4 || got.Quads[2].Left.Lit.Int != 1 {
		t.Errorf("Get returned %+v", got.Quads)
	}

	ok, err := s.Has(h)
	if err != nil || !ok {
		t.Errorf("Has = %v, %v", ok, err)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get([32]byte{1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if ok, _ := s.Has([32]byte{1}); ok {
		t.Error("Has reported a missing image")
	}
	if err := s.Delete([32]byte{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openStore(t)
	h1, _ := s.Put(program(1))
	h2, _ := s.Put(program(2))

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries", len(entries))
	}
	seen := map[[32]byte]bool{}
	for _, e := range entries {
		seen[e.Hash] = true
		if e.Quads != 4 || e.Size == 0 || e.Name != "p" || e.CreatedAt.IsZero() {
			t.Errorf("entry = %+v", e)
		}
	}
	if !seen[h1] || !seen[h2] {
		t.Error("List is missing an image")
	}

	if err := s.Delete(h1); err != nil {
		t.Fatal(err)
	}
	entries, _ = s.List()
	if len(entries) != 1 || entries[0].Hash != h2 {
		t.Errorf("after Delete: %+v", entries)
	}
}

func TestCompileCache(t *testing.T) {
	s := openStore(t)
	key := SourceKey([]byte("transcript"), "opt")
	if key == SourceKey([]byte("transcript")) {
		t.Error("salt does not change the key")
	}

	if _, ok, err := s.Lookup(key); ok || err != nil {
		t.Fatalf("Lookup before Remember = %v, %v", ok, err)
	}

	h, _ := s.Put(program(7))
	if err := s.Remember(key, h); err != nil {
		t.Fatal(err)
	}
	p, ok, err := s.Lookup(key)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if p.Quads[2].Left.Lit.Int != 7 {
		t.Errorf("cached image = %+v", p.Quads[2])
	}

	// Re-pointing a key replaces the old mapping.
	h2, _ := s.Put(program(8))
	if err := s.Remember(key, h2); err != nil {
		t.Fatal(err)
	}
	p, _, _ = s.Lookup(key)
	if p.Quads[2].Left.Lit.Int != 8 {
		t.Errorf("re-pointed image = %+v", p.Quads[2])
	}

	// Deleting the image drops the cache entry.
	if err := s.Delete(h2); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Lookup(key); ok || err != nil {
		t.Errorf("Lookup after Delete = %v, %v", ok, err)
	}
}

func TestReopenKeepsImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := s.Put(program(3))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get(h); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
