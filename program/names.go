package program

import (
	"strconv"
	"sync"

	"github.com/hashicorp/go-set/v3"
)

// Names hands out member and type names that collide with nothing declared in
// the Program it was created from, nor with anything it handed out before.
//
// Names is safe for concurrent use. Results only depend on the requested
// prefix and on what was already reserved for the same holder, so callers that
// reserve on disjoint holders get deterministic names regardless of scheduling.
type Names struct {
	mu      sync.Mutex
	members map[Type]*set.Set[string]
	types   *set.Set[Type]
}

func NewNames(p *Program) *Names {
	n := &Names{
		members: make(map[Type]*set.Set[string], p.Len()),
		types:   set.New[Type](p.Len()),
	}
	for c := range p.Classes() {
		n.types.Insert(c.Type)
		declared := set.New[string](len(c.DirectMethods) + len(c.VirtualMethods) + len(c.InstanceFields))
		for _, m := range c.Methods() {
			declared.Insert(methodKey(m.Ref.Name, m.Ref.Proto))
			declared.Insert(nameKey(m.Ref.Name))
		}
		for _, f := range c.Fields() {
			declared.Insert(fieldKey(f.Ref.Name))
		}
		n.members[c.Type] = declared
	}
	return n
}

func methodKey(name string, proto Proto) string { return "m:" + name + proto.String() }
func nameKey(name string) string                { return "n:" + name }
func fieldKey(name string) string               { return "f:" + name }

func (n *Names) holder(t Type) *set.Set[string] {
	s, ok := n.members[t]
	if !ok {
		s = set.New[string](4)
		n.members[t] = s
	}
	return s
}

// ReserveMethod marks name+proto as taken on holder. It reports false if it already was.
func (n *Names) ReserveMethod(holder Type, name string, proto Proto) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.holder(holder)
	s.Insert(nameKey(name))
	return s.Insert(methodKey(name, proto))
}

// IsMethodReserved reports whether name+proto is declared or reserved on holder.
func (n *Names) IsMethodReserved(holder Type, name string, proto Proto) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.holder(holder).Contains(methodKey(name, proto))
}

// FreshMethodName returns a method name starting with prefix that is unused on holder
// (with any proto), and reserves it with proto.
func (n *Names) FreshMethodName(holder Type, prefix string, proto Proto) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.holder(holder)
	name := freshName(prefix, func(candidate string) bool {
		return s.Contains(nameKey(candidate))
	})
	s.Insert(nameKey(name))
	s.Insert(methodKey(name, proto))
	return name
}

// FreshFieldName returns an unused field name on holder starting with prefix, and reserves it.
func (n *Names) FreshFieldName(holder Type, prefix string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.holder(holder)
	name := freshName(prefix, func(candidate string) bool {
		return s.Contains(fieldKey(candidate))
	})
	s.Insert(fieldKey(name))
	return name
}

// ReserveField marks name as taken on holder. It reports false if it already was.
func (n *Names) ReserveField(holder Type, name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.holder(holder).Insert(fieldKey(name))
}

// FreshType returns an unused class type pkg.prefix, pkg.prefix$1, ... and reserves it.
func (n *Names) FreshType(pkg, prefix string) Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	name := freshName(prefix, func(candidate string) bool {
		return n.types.Contains(InPackage(pkg, candidate))
	})
	t := InPackage(pkg, name)
	n.types.Insert(t)
	return t
}

func freshName(prefix string, taken func(string) bool) string {
	if !taken(prefix) {
		return prefix
	}
	for i := 1; ; i++ {
		candidate := prefix + "$" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
