package program

import (
	"fmt"
	"strings"
)

// Type is the fully qualified name of a class, primitive or array type.
// Class types use dotted names (p.q.A), arrays append "[]" per dimension.
//
// Types are plain strings so they can be compared and used as map keys directly,
// which is what lets the rest of the module address classes by identity
// without holding pointers into the Program.
type Type string

const (
	Void    Type = "void"
	Boolean Type = "boolean"
	Byte    Type = "byte"
	Char    Type = "char"
	Short   Type = "short"
	Int     Type = "int"
	Long    Type = "long"
	Float   Type = "float"
	Double  Type = "double"

	Object Type = "java.lang.Object"
	String Type = "java.lang.String"
)

const arraySuffix = "[]"

func (t Type) String() string { return string(t) }

func (t Type) IsArray() bool { return strings.HasSuffix(string(t), arraySuffix) }

// Element strips a single array dimension. It returns t itself for non-array types.
func (t Type) Element() Type {
	if !t.IsArray() {
		return t
	}
	return t[:len(t)-len(arraySuffix)]
}

// Base strips every array dimension.
func (t Type) Base() Type {
	for t.IsArray() {
		t = t.Element()
	}
	return t
}

// Dims is the number of array dimensions of t.
func (t Type) Dims() int {
	return strings.Count(string(t), arraySuffix)
}

// WithBase replaces the base type of t, keeping its array dimensions.
func (t Type) WithBase(base Type) Type {
	return base.ArrayOf(t.Dims())
}

func (t Type) ArrayOf(dims int) Type {
	return Type(string(t) + strings.Repeat(arraySuffix, dims))
}

func (t Type) IsPrimitive() bool {
	switch t {
	case Void, Boolean, Byte, Char, Short, Int, Long, Float, Double:
		return true
	}
	return false
}

// IsReference is true for class and array types.
func (t Type) IsReference() bool {
	return t != "" && !t.IsPrimitive()
}

// Package returns the package of a class type, "" for the default package.
func (t Type) Package() string {
	b := string(t.Base())
	if i := strings.LastIndexByte(b, '.'); i >= 0 {
		return b[:i]
	}
	return ""
}

func (t Type) SimpleName() string {
	b := string(t.Base())
	if i := strings.LastIndexByte(b, '.'); i >= 0 {
		return b[i+1:]
	}
	return b
}

// InPackage builds the class type pkg.name.
func InPackage(pkg, name string) Type {
	if pkg == "" {
		return Type(name)
	}
	return Type(pkg + "." + name)
}

// MapType substitutes the base of t through f, recursing through array element types.
func MapType(t Type, f func(Type) Type) Type {
	if t == "" || t.IsPrimitive() {
		return t
	}
	base := t.Base()
	mapped := f(base)
	if mapped == base {
		return t
	}
	return t.WithBase(mapped)
}

const protoSep = ","

// Proto is a method prototype. It is comparable, so MethodRef can be used as a map key.
type Proto struct {
	Return Type
	params string
}

func NewProto(ret Type, params ...Type) Proto {
	b := strings.Builder{}
	for i, p := range params {
		if i > 0 {
			b.WriteString(protoSep)
		}
		b.WriteString(string(p))
	}
	return Proto{Return: ret, params: b.String()}
}

func (p Proto) Params() []Type {
	if p.params == "" {
		return nil
	}
	split := strings.Split(p.params, protoSep)
	ret := make([]Type, len(split))
	for i, s := range split {
		ret[i] = Type(s)
	}
	return ret
}

func (p Proto) Arity() int {
	if p.params == "" {
		return 0
	}
	return strings.Count(p.params, protoSep) + 1
}

// Append returns a proto with extra trailing parameters.
func (p Proto) Append(params ...Type) Proto {
	return NewProto(p.Return, append(p.Params(), params...)...)
}

// Map substitutes every type mentioned by p.
func (p Proto) Map(f func(Type) Type) Proto {
	params := p.Params()
	for i, param := range params {
		params[i] = MapType(param, f)
	}
	return NewProto(MapType(p.Return, f), params...)
}

// Mentions reports whether any parameter or the return type has base t.
func (p Proto) Mentions(pred func(Type) bool) bool {
	if pred(p.Return.Base()) {
		return true
	}
	for _, param := range p.Params() {
		if pred(param.Base()) {
			return true
		}
	}
	return false
}

func (p Proto) String() string {
	return "(" + p.params + ")" + string(p.Return)
}

func (p Proto) Equal(other Proto) bool { return p == other }

// ParseProto reads the format produced by Proto.String
func ParseProto(s string) (Proto, error) {
	if !strings.HasPrefix(s, "(") {
		return Proto{}, fmt.Errorf("proto %q: missing '('", s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 || end == len(s)-1 {
		return Proto{}, fmt.Errorf("proto %q: missing return type", s)
	}
	var params []Type
	if inner := strings.TrimSpace(s[1:end]); inner != "" {
		for _, p := range strings.Split(inner, protoSep) {
			params = append(params, Type(strings.TrimSpace(p)))
		}
	}
	return NewProto(Type(s[end+1:]), params...), nil
}

const (
	ConstructorName      = "<init>"
	ClassInitializerName = "<clinit>"
)

// MemberRef is implemented by MethodRef and FieldRef
type MemberRef interface {
	fmt.Stringer
	HolderType() Type
	MemberName() string
}

// MethodRef identifies a method by holder, name and prototype.
type MethodRef struct {
	Holder Type
	Name   string
	Proto  Proto
}

func NewMethodRef(holder Type, name string, ret Type, params ...Type) MethodRef {
	return MethodRef{Holder: holder, Name: name, Proto: NewProto(ret, params...)}
}

func (m MethodRef) HolderType() Type   { return m.Holder }
func (m MethodRef) MemberName() string { return m.Name }

func (m MethodRef) IsConstructor() bool      { return m.Name == ConstructorName }
func (m MethodRef) IsClassInitializer() bool { return m.Name == ClassInitializerName }

func (m MethodRef) WithHolder(h Type) MethodRef {
	m.Holder = h
	return m
}

func (m MethodRef) WithName(name string) MethodRef {
	m.Name = name
	return m
}

func (m MethodRef) WithProto(p Proto) MethodRef {
	m.Proto = p
	return m
}

// Signature is the holder-independent part of the reference.
func (m MethodRef) Signature() Signature {
	return Signature{Name: m.Name, Proto: m.Proto}
}

func (m MethodRef) String() string {
	return string(m.Holder) + "." + m.Name + m.Proto.String()
}

// Signature is a method name and prototype, used to match overrides.
type Signature struct {
	Name  string
	Proto Proto
}

func (s Signature) On(holder Type) MethodRef {
	return MethodRef{Holder: holder, Name: s.Name, Proto: s.Proto}
}

func (s Signature) String() string { return s.Name + s.Proto.String() }

// FieldRef identifies a field by holder, name and declared type.
type FieldRef struct {
	Holder Type
	Name   string
	Type   Type
}

func (f FieldRef) HolderType() Type   { return f.Holder }
func (f FieldRef) MemberName() string { return f.Name }

func (f FieldRef) WithHolder(h Type) FieldRef {
	f.Holder = h
	return f
}

func (f FieldRef) String() string {
	return string(f.Holder) + "." + f.Name + ":" + string(f.Type)
}
