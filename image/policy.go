package image

import "fmt"

// NativePolicy controls which natives an image may call before it is run.
// A nil Allowed means "allow all".
type NativePolicy struct {
	Allowed map[string]bool // nil = allow all
	Denied  map[string]bool
}

// NewPermissivePolicy creates a policy that allows every native.
func NewPermissivePolicy() *NativePolicy {
	return &NativePolicy{}
}

// NewRestrictedPolicy creates a policy that only allows the named natives.
func NewRestrictedPolicy(allowed []string) *NativePolicy {
	m := make(map[string]bool, len(allowed))
	for _, n := range allowed {
		m[n] = true
	}
	return &NativePolicy{Allowed: m}
}

// Check verifies that every native the image calls is allowed. The
// instructions are consulted, not the recorded Natives list.
func (p *NativePolicy) Check(prog *Program) error {
	for _, name := range ReferencedNatives(prog.Quads) {
		if p.Denied != nil && p.Denied[name] {
			return fmt.Errorf("image: native %q is explicitly denied", name)
		}
		if p.Allowed != nil && !p.Allowed[name] {
			return fmt.Errorf("image: native %q is not allowed", name)
		}
	}
	return nil
}

// Deny adds a native to the deny list.
func (p *NativePolicy) Deny(name string) {
	if p.Denied == nil {
		p.Denied = make(map[string]bool)
	}
	p.Denied[name] = true
}
