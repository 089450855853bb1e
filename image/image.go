// Package image is the on-disk and on-the-wire form of a compiled program:
// the quadruple list plus the natives it calls, encoded as canonical CBOR
// and identified by the SHA-256 of that encoding.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/quadra/quad"
)

// Version is the image format version written by Marshal.
const Version = 1

// Program is a compiled program image.
type Program struct {
	Version   int         `cbor:"1,keyasint"`
	Name      string      `cbor:"2,keyasint,omitempty"`
	Quads     []quad.Quad `cbor:"3,keyasint"`
	Natives   []string    `cbor:"4,keyasint,omitempty"` // natives reached by NCALL
	Optimized bool        `cbor:"5,keyasint,omitempty"`
}

// New wraps quads in an image at the current version. Natives is derived
// from the NCALL instructions.
func New(name string, quads []quad.Quad, optimized bool) *Program {
	return &Program{
		Version:   Version,
		Name:      name,
		Quads:     quads,
		Natives:   ReferencedNatives(quads),
		Optimized: optimized,
	}
}

// ReferencedNatives returns the sorted, de-duplicated names of the natives
// called by quads.
func ReferencedNatives(quads []quad.Quad) []string {
	seen := make(map[string]bool)
	var names []string
	for _, q := range quads {
		if q.Op == quad.OpNCall && !seen[q.Left.Name] {
			seen[q.Left.Name] = true
			names = append(names, q.Left.Name)
		}
	}
	sort.Strings(names)
	return names
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes an image to canonical CBOR.
func Marshal(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// Unmarshal deserializes and validates an image.
func Unmarshal(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d (want %d)", p.Version, Version)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every jump and call target lies inside the program.
func (p *Program) Validate() error {
	n := len(p.Quads)
	for i, q := range p.Quads {
		if !q.Op.HasTarget() {
			continue
		}
		target, ok := q.Target()
		if !ok {
			return fmt.Errorf("image: %s at %d has no target", q.Op, i)
		}
		if target < 0 || target > n {
			return fmt.Errorf("image: %s at %d targets %d outside [0, %d]", q.Op, i, target, n)
		}
	}
	return nil
}

// Hash returns the SHA-256 of the canonical encoding.
func Hash(p *Program) ([32]byte, error) {
	data, err := Marshal(p)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// HashString renders a hash as lowercase hex.
func HashString(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses the hex form produced by HashString.
func ParseHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("image: bad hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("image: bad hash %q: %d bytes", s, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Save writes an image file.
func Save(path string, p *Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: save: %w", err)
	}
	return nil
}

// Load reads an image file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: load: %w", err)
	}
	return Unmarshal(data)
}
