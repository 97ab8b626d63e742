package lens

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/cottand/hmerge/program"
	"github.com/hashicorp/go-set/v3"
)

type ExtraKind int

const (
	// ExtraConstant passes a fixed value, such as a class id discriminator
	ExtraConstant ExtraKind = iota
	// ExtraMarker passes null for a parameter that only disambiguates overloads
	ExtraMarker
	// ExtraUnused passes null for padding that the callee never reads
	ExtraUnused
)

func (k ExtraKind) String() string {
	switch k {
	case ExtraConstant:
		return "constant"
	case ExtraMarker:
		return "marker"
	default:
		return "unused"
	}
}

// ExtraParam is a parameter appended to a call site when a method was merged.
type ExtraParam struct {
	Kind  ExtraKind
	Type  program.Type
	Value program.Const
}

func ConstantParam(t program.Type, value program.Const) ExtraParam {
	return ExtraParam{Kind: ExtraConstant, Type: t, Value: value}
}

func MarkerParam(t program.Type) ExtraParam {
	return ExtraParam{Kind: ExtraMarker, Type: t, Value: program.Null()}
}

func UnusedParam(t program.Type) ExtraParam {
	return ExtraParam{Kind: ExtraUnused, Type: t, Value: program.Null()}
}

func (e ExtraParam) String() string {
	return fmt.Sprintf("%v %v=%s", e.Kind, e.Type, e.Value.Repr())
}

// Layer is the set of renames performed by one optimization phase.
// Layers are immutable once built; compose them with Lens.Push.
//
// References without an explicit entry get their holder mapped through the layer's
// types. Their prototype and field type are only mapped in layers that rewrite
// signatures; other layers leave that to a later fixup layer, which can then tell
// apart two members whose signatures only collide once fixed.
type Layer struct {
	Name string

	rewritesSignatures bool

	types      map[program.Type]program.Type
	methods    map[program.MethodRef]program.MethodRef
	signatures map[program.Signature]program.Signature
	fields     map[program.FieldRef]program.FieldRef
	extra      map[program.MethodRef][]ExtraParam

	// representative maps a new method to the one old method it stands for
	representative map[program.MethodRef]program.MethodRef
	// originals maps a new method to every old method folded into it, sorted
	originals       map[program.MethodRef][]program.MethodRef
	extraSignatures *set.Set[program.MethodRef]
}

func (l *Layer) lookupType(t program.Type) program.Type {
	return program.MapType(t, func(base program.Type) program.Type {
		if to, ok := l.types[base]; ok {
			return to
		}
		return base
	})
}

func (l *Layer) lookupMethod(m program.MethodRef) (program.MethodRef, []ExtraParam) {
	if to, ok := l.methods[m]; ok {
		return to, l.extra[m]
	}
	sig := m.Signature()
	if to, ok := l.signatures[sig]; ok {
		sig = to
	} else if l.rewritesSignatures {
		sig.Proto = sig.Proto.Map(l.lookupType)
	}
	return sig.On(l.lookupType(m.Holder)), nil
}

func (l *Layer) lookupField(f program.FieldRef) program.FieldRef {
	if to, ok := l.fields[f]; ok {
		return to
	}
	typ := f.Type
	if l.rewritesSignatures {
		typ = l.lookupType(typ)
	}
	return program.FieldRef{Holder: l.lookupType(f.Holder), Name: f.Name, Type: typ}
}

// RewritesSignatures reports whether unmapped prototypes and field types are rewritten.
func (l *Layer) RewritesSignatures() bool { return l.rewritesSignatures }

func (l *Layer) String() string {
	return fmt.Sprintf("layer %s (%d types, %d methods, %d fields)", l.Name, len(l.types), len(l.methods), len(l.fields))
}

// Builder accumulates the renames of one phase. It is not safe for concurrent use:
// concurrent workers should each fill their own Builder and Merge them in a fixed order.
type Builder struct {
	rewritesSignatures bool

	types           map[program.Type]program.Type
	methods         map[program.MethodRef]program.MethodRef
	signatures      map[program.Signature]program.Signature
	fields          map[program.FieldRef]program.FieldRef
	extra           map[program.MethodRef][]ExtraParam
	representative  map[program.MethodRef]program.MethodRef
	extraSignatures *set.Set[program.MethodRef]
}

func NewBuilder() *Builder {
	return &Builder{
		types:           make(map[program.Type]program.Type),
		methods:         make(map[program.MethodRef]program.MethodRef),
		signatures:      make(map[program.Signature]program.Signature),
		fields:          make(map[program.FieldRef]program.FieldRef),
		extra:           make(map[program.MethodRef][]ExtraParam),
		representative:  make(map[program.MethodRef]program.MethodRef),
		extraSignatures: set.New[program.MethodRef](0),
	}
}

// RewriteSignatures makes the built layer map the types inside prototypes and field
// types of references it has no explicit entry for.
func (b *Builder) RewriteSignatures() {
	b.rewritesSignatures = true
}

func (b *Builder) MapType(from, to program.Type) {
	if from != to {
		b.types[from] = to
	}
}

// MoveMethod records a one-to-one rename. from becomes the representative of to
// unless to already has one.
func (b *Builder) MoveMethod(from, to program.MethodRef) {
	if from == to {
		return
	}
	b.methods[from] = to
	if _, ok := b.representative[to]; !ok && !b.extraSignatures.Contains(to) {
		b.representative[to] = from
	}
}

// MapMethod records that calls to from must call to, appending extra arguments.
// It does not assign a representative; use SetRepresentative or MarkExtraSignature.
func (b *Builder) MapMethod(from, to program.MethodRef, extra ...ExtraParam) {
	b.methods[from] = to
	if len(extra) > 0 {
		b.extra[from] = slices.Clone(extra)
	} else {
		delete(b.extra, from)
	}
}

func (b *Builder) SetRepresentative(to, from program.MethodRef) {
	b.representative[to] = from
}

// MarkExtraSignature tags to as a method that did not exist before this phase.
// It has no representative original signature.
func (b *Builder) MarkExtraSignature(to program.MethodRef) {
	b.extraSignatures.Insert(to)
	delete(b.representative, to)
}

// RenameSignature records a program-wide rename of a virtual method signature, used for
// references that are not explicitly mapped.
func (b *Builder) RenameSignature(from, to program.Signature) {
	if from != to {
		b.signatures[from] = to
	}
}

func (b *Builder) MapField(from, to program.FieldRef) {
	if from != to {
		b.fields[from] = to
	}
}

func (b *Builder) IsEmpty() bool {
	return len(b.types) == 0 && len(b.methods) == 0 && len(b.fields) == 0 && len(b.signatures) == 0
}

// Merge copies every rename of other into b. Later merges win on conflicting keys.
func (b *Builder) Merge(other *Builder) {
	b.rewritesSignatures = b.rewritesSignatures || other.rewritesSignatures
	maps.Copy(b.types, other.types)
	maps.Copy(b.methods, other.methods)
	maps.Copy(b.signatures, other.signatures)
	maps.Copy(b.fields, other.fields)
	maps.Copy(b.extra, other.extra)
	maps.Copy(b.representative, other.representative)
	for m := range other.extraSignatures.Items() {
		b.extraSignatures.Insert(m)
	}
}

func compareMethods(a, b program.MethodRef) int {
	return cmp.Compare(a.String(), b.String())
}

func (b *Builder) Build(name string) *Layer {
	originals := make(map[program.MethodRef][]program.MethodRef)
	for from, to := range b.methods {
		originals[to] = append(originals[to], from)
	}
	for _, olds := range originals {
		slices.SortFunc(olds, compareMethods)
	}
	return &Layer{
		Name:               name,
		rewritesSignatures: b.rewritesSignatures,
		types:              maps.Clone(b.types),
		methods:            maps.Clone(b.methods),
		signatures:         maps.Clone(b.signatures),
		fields:             maps.Clone(b.fields),
		extra:              maps.Clone(b.extra),
		representative:     maps.Clone(b.representative),
		originals:          originals,
		extraSignatures:    set.From(b.extraSignatures.Slice()),
	}
}
