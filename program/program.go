// Package program models the whole program a compiler pass operates on.
//
// A Program is an arena of classes addressed by Type. Classes are treated as
// copy-on-write values by the optimization passes in this module: readers may
// traverse a Program concurrently, and writers build new Class values which they
// then install with Replace, Add or Remove from a single goroutine.
package program

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

type Program struct {
	order   []Type
	classes map[Type]*Class
}

// New builds a Program with classes in the given order. Duplicate types are an error.
func New(classes ...*Class) (*Program, error) {
	p := &Program{classes: make(map[Type]*Class, len(classes))}
	for _, c := range classes {
		if err := p.Add(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MustNew is New for statically known inputs, such as tests.
func MustNew(classes ...*Class) *Program {
	p, err := New(classes...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) Len() int { return len(p.order) }

func (p *Program) Class(t Type) (*Class, bool) {
	c, ok := p.classes[t]
	return c, ok
}

func (p *Program) Has(t Type) bool {
	_, ok := p.classes[t]
	return ok
}

// Classes iterates in insertion order.
func (p *Program) Classes() iter.Seq[*Class] {
	return func(yield func(*Class) bool) {
		for _, t := range p.order {
			if !yield(p.classes[t]) {
				return
			}
		}
	}
}

// Types returns a copy of the class order.
func (p *Program) Types() []Type {
	return slices.Clone(p.order)
}

func (p *Program) Add(c *Class) error {
	if _, ok := p.classes[c.Type]; ok {
		return fmt.Errorf("duplicate class %v", c.Type)
	}
	p.classes[c.Type] = c
	p.order = append(p.order, c.Type)
	return nil
}

// Replace installs c in place of the existing class of the same type, keeping its position.
func (p *Program) Replace(c *Class) error {
	if _, ok := p.classes[c.Type]; !ok {
		return fmt.Errorf("replacing unknown class %v", c.Type)
	}
	p.classes[c.Type] = c
	return nil
}

// Remove deletes classes. Unknown types are ignored.
func (p *Program) Remove(types ...Type) {
	removed := false
	for _, t := range types {
		if _, ok := p.classes[t]; ok {
			delete(p.classes, t)
			removed = true
		}
	}
	if removed {
		p.order = slices.DeleteFunc(p.order, func(t Type) bool {
			_, ok := p.classes[t]
			return !ok
		})
	}
}

// Snapshot returns a Program sharing the same Class values but with an independent index,
// so classes can be added, replaced or removed without affecting p.
func (p *Program) Snapshot() *Program {
	return &Program{
		order:   slices.Clone(p.order),
		classes: maps.Clone(p.classes),
	}
}

// ResolveMethod looks sig up on t and then along its super class chain.
// Library classes (not part of the Program) end the search.
func (p *Program) ResolveMethod(t Type, sig Signature) (*Class, *Method) {
	for t != "" {
		c, ok := p.classes[t]
		if !ok {
			return nil, nil
		}
		if m := c.LookupMethod(sig); m != nil {
			return c, m
		}
		t = c.Super
	}
	return nil, nil
}

// IsSubtype reports whether sub is super or inherits from it through classes of p.
func (p *Program) IsSubtype(sub, super Type) bool {
	if sub == super {
		return true
	}
	seen := make(map[Type]bool)
	work := []Type{sub}
	for len(work) > 0 {
		t := work[len(work)-1]
		work = work[:len(work)-1]
		if t == super {
			return true
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		c, ok := p.classes[t]
		if !ok {
			continue
		}
		if c.Super != "" {
			work = append(work, c.Super)
		}
		work = append(work, c.Interfaces...)
	}
	return false
}
