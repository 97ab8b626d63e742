package policy

import (
	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/program"
	"github.com/hashicorp/go-set/v3"
)

// SameParentClass only merges classes that extend the same class.
func SameParentClass() MultiClassPolicy {
	return NewPartition("SameParentClass", func(c *program.Class) program.Type { return c.Super })
}

// SamePackage keeps package-private accesses valid after merging.
func SamePackage() MultiClassPolicy {
	return NewPartition("SamePackage", func(c *program.Class) string { return c.Type.Package() })
}

type limitGroupSize struct {
	named
	max int
}

// LimitGroupSize splits groups into consecutive chunks of at most max classes.
func LimitGroupSize(max int) MultiClassPolicy {
	return limitGroupSize{named: named{"LimitGroupSize"}, max: max}
}

func (l limitGroupSize) Apply(g *group.MergeGroup) []*group.MergeGroup {
	if l.max <= 1 {
		return nil
	}
	classes := g.Classes()
	if len(classes) <= l.max {
		return []*group.MergeGroup{g}
	}
	var ret []*group.MergeGroup
	for start := 0; start < len(classes); start += l.max {
		end := min(start+l.max, len(classes))
		ret = append(ret, group.New(classes[start:end]...))
	}
	return ret
}

// greedy assigns each class, in group order, to the first subgroup it is compatible
// with, opening a new subgroup when there is none.
func greedy(g *group.MergeGroup, compatible func(members []*program.Class, c *program.Class) bool) []*group.MergeGroup {
	var parts [][]*program.Class
	for _, c := range g.Classes() {
		placed := false
		for i, members := range parts {
			if compatible(members, c) {
				parts[i] = append(members, c)
				placed = true
				break
			}
		}
		if !placed {
			parts = append(parts, []*program.Class{c})
		}
	}
	ret := make([]*group.MergeGroup, len(parts))
	for i, members := range parts {
		ret[i] = group.New(members...)
	}
	return ret
}

type noDirectlyConnectedInterfaces struct {
	named
	prog *program.Program
}

// NoDirectlyConnectedInterfaces never puts an interface in the same group as one of its
// super or sub interfaces: the merged interface would extend itself.
func NoDirectlyConnectedInterfaces(prog *program.Program) MultiClassPolicy {
	return noDirectlyConnectedInterfaces{named: named{"NoDirectlyConnectedInterfaces"}, prog: prog}
}

func (n noDirectlyConnectedInterfaces) Apply(g *group.MergeGroup) []*group.MergeGroup {
	if !g.IsInterfaceGroup() {
		return []*group.MergeGroup{g}
	}
	return greedy(g, func(members []*program.Class, c *program.Class) bool {
		for _, m := range members {
			if n.prog.IsSubtype(c.Type, m.Type) || n.prog.IsSubtype(m.Type, c.Type) {
				return false
			}
		}
		return true
	})
}

type noDefaultInterfaceMethodCollisions struct{ named }

// NoDefaultInterfaceMethodCollisions keeps interfaces that both implement a default method
// with the same signature apart, since one interface cannot hold two default bodies.
func NoDefaultInterfaceMethodCollisions() MultiClassPolicy {
	return noDefaultInterfaceMethodCollisions{named{"NoDefaultInterfaceMethodCollisions"}}
}

func defaultMethods(c *program.Class) *set.Set[program.Signature] {
	s := set.New[program.Signature](len(c.VirtualMethods))
	for _, m := range c.VirtualMethods {
		if m.Body != nil {
			s.Insert(m.Ref.Signature())
		}
	}
	return s
}

func (noDefaultInterfaceMethodCollisions) Apply(g *group.MergeGroup) []*group.MergeGroup {
	if !g.IsInterfaceGroup() {
		return []*group.MergeGroup{g}
	}
	return greedy(g, func(members []*program.Class, c *program.Class) bool {
		mine := defaultMethods(c)
		for _, m := range members {
			if !mine.Intersect(defaultMethods(m)).Empty() {
				return false
			}
		}
		return true
	})
}

type noDefaultInterfaceMethodMerging struct {
	named
	prog *program.Program
}

// NoDefaultInterfaceMethodMerging keeps a class that inherits a default method apart from
// classes that declare the same signature, or inherit it from another interface. The
// merged class would otherwise run one body for the instances of both.
func NoDefaultInterfaceMethodMerging(prog *program.Program) MultiClassPolicy {
	return noDefaultInterfaceMethodMerging{named: named{"NoDefaultInterfaceMethodMerging"}, prog: prog}
}

// inheritedDefaults maps every signature c gets from a default method to the interface
// declaring it. Methods of c and of its super classes take precedence over defaults.
func (n noDefaultInterfaceMethodMerging) inheritedDefaults(c *program.Class) map[program.Signature]program.Type {
	var work []program.Type
	for t := c.Type; t != ""; {
		k, ok := n.prog.Class(t)
		if !ok {
			break
		}
		work = append(work, k.Interfaces...)
		t = k.Super
	}
	ret := make(map[program.Signature]program.Type)
	seen := set.New[program.Type](len(work))
	for len(work) > 0 {
		i := work[0]
		work = work[1:]
		if !seen.Insert(i) {
			continue
		}
		k, ok := n.prog.Class(i)
		if !ok {
			continue
		}
		for _, m := range k.VirtualMethods {
			sig := m.Ref.Signature()
			if _, found := ret[sig]; found || m.Body == nil {
				continue
			}
			if _, declared := n.prog.ResolveMethod(c.Type, sig); declared != nil {
				continue
			}
			ret[sig] = i
		}
		work = append(work, k.Interfaces...)
	}
	return ret
}

func (n noDefaultInterfaceMethodMerging) Apply(g *group.MergeGroup) []*group.MergeGroup {
	if g.IsInterfaceGroup() {
		return []*group.MergeGroup{g}
	}
	defaults := make(map[program.Type]map[program.Signature]program.Type, g.Size())
	for _, c := range g.Classes() {
		defaults[c.Type] = n.inheritedDefaults(c)
	}
	// conflicts reports whether a inherits a default that b declares or inherits differently
	conflicts := func(a, b *program.Class) bool {
		for sig, from := range defaults[a.Type] {
			if b.LookupVirtualMethod(sig) != nil {
				return true
			}
			if other, ok := defaults[b.Type][sig]; ok && other != from {
				return true
			}
		}
		return false
	}
	return greedy(g, func(members []*program.Class, c *program.Class) bool {
		for _, m := range members {
			if conflicts(c, m) || conflicts(m, c) {
				return false
			}
		}
		return true
	})
}
