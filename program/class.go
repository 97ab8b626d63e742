package program

import (
	"slices"
)

// InlineHint tells later passes how eagerly a method should be inlined.
type InlineHint int

const (
	InlineDefault InlineHint = iota
	InlineForce
)

type Field struct {
	Ref   FieldRef
	Flags Flags
}

func (f *Field) Clone() *Field {
	c := *f
	return &c
}

type Method struct {
	Ref   MethodRef
	Flags Flags
	// Body is nil for abstract and native methods
	Body   *Body
	Inline InlineHint
	// Synthesized marks methods created by an optimization rather than read from the input
	Synthesized bool
}

func (m *Method) Clone() *Method {
	c := *m
	c.Body = m.Body.Clone()
	return &c
}

func (m *Method) IsConstructor() bool      { return m.Ref.IsConstructor() }
func (m *Method) IsClassInitializer() bool { return m.Ref.IsClassInitializer() }

// IsDirect is true for methods that are never dispatched virtually.
func (m *Method) IsDirect() bool {
	return m.Flags.IsStatic() || m.Flags.IsPrivate() || m.IsConstructor() || m.IsClassInitializer()
}

// Class is a single class or interface definition of a Program.
type Class struct {
	Type       Type
	Flags      Flags
	Super      Type // empty for the root of the hierarchy
	Interfaces []Type

	StaticFields   []*Field
	InstanceFields []*Field

	// DirectMethods holds static, private, constructor and class initializer methods
	DirectMethods  []*Method
	VirtualMethods []*Method
}

func (c *Class) IsInterface() bool { return c.Flags.IsInterface() }

// Clone deep-copies c so the copy can be mutated without affecting c.
func (c *Class) Clone() *Class {
	clone := *c
	clone.Interfaces = slices.Clone(c.Interfaces)
	clone.StaticFields = cloneAll(c.StaticFields, (*Field).Clone)
	clone.InstanceFields = cloneAll(c.InstanceFields, (*Field).Clone)
	clone.DirectMethods = cloneAll(c.DirectMethods, (*Method).Clone)
	clone.VirtualMethods = cloneAll(c.VirtualMethods, (*Method).Clone)
	return &clone
}

func cloneAll[A any](elems []A, clone func(A) A) []A {
	if elems == nil {
		return nil
	}
	ret := make([]A, len(elems))
	for i, e := range elems {
		ret[i] = clone(e)
	}
	return ret
}

// Methods returns direct methods followed by virtual methods.
func (c *Class) Methods() []*Method {
	return slices.Concat(c.DirectMethods, c.VirtualMethods)
}

func (c *Class) Fields() []*Field {
	return slices.Concat(c.StaticFields, c.InstanceFields)
}

// AddMethod files m as a direct or virtual method depending on its flags and name.
func (c *Class) AddMethod(m *Method) {
	if m.IsDirect() {
		c.DirectMethods = append(c.DirectMethods, m)
	} else {
		c.VirtualMethods = append(c.VirtualMethods, m)
	}
}

func (c *Class) AddField(f *Field) {
	if f.Flags.IsStatic() {
		c.StaticFields = append(c.StaticFields, f)
	} else {
		c.InstanceFields = append(c.InstanceFields, f)
	}
}

// LookupMethod finds a method declared on c by signature.
func (c *Class) LookupMethod(sig Signature) *Method {
	for _, m := range c.DirectMethods {
		if m.Ref.Signature() == sig {
			return m
		}
	}
	return c.LookupVirtualMethod(sig)
}

func (c *Class) LookupVirtualMethod(sig Signature) *Method {
	for _, m := range c.VirtualMethods {
		if m.Ref.Signature() == sig {
			return m
		}
	}
	return nil
}

func (c *Class) LookupDirectMethod(sig Signature) *Method {
	for _, m := range c.DirectMethods {
		if m.Ref.Signature() == sig {
			return m
		}
	}
	return nil
}

// LookupField finds a field declared on c by name and type.
func (c *Class) LookupField(name string, typ Type) *Field {
	for _, f := range c.InstanceFields {
		if f.Ref.Name == name && f.Ref.Type == typ {
			return f
		}
	}
	for _, f := range c.StaticFields {
		if f.Ref.Name == name && f.Ref.Type == typ {
			return f
		}
	}
	return nil
}

// Constructors returns the instance initializers declared on c in declaration order.
func (c *Class) Constructors() []*Method {
	var ret []*Method
	for _, m := range c.DirectMethods {
		if m.IsConstructor() {
			ret = append(ret, m)
		}
	}
	return ret
}

func (c *Class) ClassInitializer() *Method {
	for _, m := range c.DirectMethods {
		if m.IsClassInitializer() {
			return m
		}
	}
	return nil
}

// RemoveMethod drops the method with the given signature, if declared.
func (c *Class) RemoveMethod(sig Signature) {
	match := func(m *Method) bool { return m.Ref.Signature() == sig }
	c.DirectMethods = slices.DeleteFunc(c.DirectMethods, match)
	c.VirtualMethods = slices.DeleteFunc(c.VirtualMethods, match)
}

// ReferencedTypes yields every type mentioned in the declaration of c (not its bodies).
func (c *Class) ReferencedTypes(yield func(Type)) {
	if c.Super != "" {
		yield(c.Super)
	}
	for _, i := range c.Interfaces {
		yield(i)
	}
	for _, f := range c.Fields() {
		yield(f.Ref.Type.Base())
	}
	for _, m := range c.Methods() {
		yield(m.Ref.Proto.Return.Base())
		for _, p := range m.Ref.Proto.Params() {
			yield(p.Base())
		}
	}
}
