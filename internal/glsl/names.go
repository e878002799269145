package glsl

import "fmt"

// Names allocates uniform names for one compile. Each compile owns its own
// allocator, so repeated compiles produce the same names.
type Names struct {
	next map[string]int
}

// NewNames returns an empty allocator.
func NewNames() *Names {
	return &Names{next: make(map[string]int)}
}

// Uniform returns a fresh name with the given prefix, e.g. u_input0.
func (n *Names) Uniform(prefix string) string {
	i := n.next[prefix]
	n.next[prefix] = i + 1
	return fmt.Sprintf("u_%s%d", prefix, i)
}
