// Package lens implements the renaming map ("lens") that optimization passes hand to
// every later pass: old type, method and field references map to new ones, and merged
// methods remember which originals they stand for and which extra arguments callers
// must now pass.
//
// A Lens is an append-only sequence of Layers plus a flattened view of all of them,
// computed once in Push. Explicitly mapped references are answered from the flattened
// view; only references no layer mentions are rewritten layer by layer.
// Lens values are immutable and safe for concurrent reads.
package lens

import (
	"slices"

	"github.com/benbjohnson/immutable"
	"github.com/cottand/hmerge/program"
)

// MethodLookup is the result of rewriting a method reference.
type MethodLookup struct {
	Ref program.MethodRef
	// Extra are appended, in order, to the arguments of every call to Ref
	// that used to be a call to the looked-up method
	Extra []ExtraParam
}

type Lens struct {
	layers []*Layer

	types   *immutable.Map[program.Type, program.Type]
	methods *immutable.Map[program.MethodRef, MethodLookup]
	fields  *immutable.Map[program.FieldRef, program.FieldRef]

	representative  *immutable.Map[program.MethodRef, program.MethodRef]
	originals       *immutable.Map[program.MethodRef, []program.MethodRef]
	extraSignatures *immutable.Map[program.MethodRef, struct{}]
}

// Identity maps every reference to itself.
func Identity() *Lens {
	return &Lens{
		types:           immutable.NewMap[program.Type, program.Type](typeHasher),
		methods:         immutable.NewMap[program.MethodRef, MethodLookup](methodHasher),
		fields:          immutable.NewMap[program.FieldRef, program.FieldRef](fieldHasher),
		representative:  immutable.NewMap[program.MethodRef, program.MethodRef](methodHasher),
		originals:       immutable.NewMap[program.MethodRef, []program.MethodRef](methodHasher),
		extraSignatures: immutable.NewMap[program.MethodRef, struct{}](methodHasher),
	}
}

func (l *Lens) IsIdentity() bool { return len(l.layers) == 0 }

// Layers returns the layers composed into l, oldest first.
func (l *Lens) Layers() []*Layer { return slices.Clone(l.layers) }

// Push composes layer on top of l. l itself is left unchanged.
func (l *Lens) Push(layer *Layer) *Lens {
	next := &Lens{layers: append(slices.Clip(l.layers), layer)}
	next.types = composeTypes(l.types, layer)
	next.methods = composeMethods(l.methods, layer)
	next.fields = composeFields(l.fields, layer)
	next.representative, next.originals, next.extraSignatures = composeOriginals(l, layer)
	return next
}

func composeTypes(prev *immutable.Map[program.Type, program.Type], layer *Layer) *immutable.Map[program.Type, program.Type] {
	next := prev
	itr := prev.Iterator()
	for !itr.Done() {
		from, to, _ := itr.Next()
		next = next.Set(from, layer.lookupType(to))
	}
	for from, to := range layer.types {
		if _, ok := prev.Get(from); !ok {
			next = next.Set(from, to)
		}
	}
	return next
}

func composeMethods(prev *immutable.Map[program.MethodRef, MethodLookup], layer *Layer) *immutable.Map[program.MethodRef, MethodLookup] {
	next := prev
	itr := prev.Iterator()
	for !itr.Done() {
		from, lookup, _ := itr.Next()
		to, extra := layer.lookupMethod(lookup.Ref)
		next = next.Set(from, MethodLookup{Ref: to, Extra: slices.Concat(lookup.Extra, extra)})
	}
	for from, to := range layer.methods {
		if _, ok := prev.Get(from); !ok {
			next = next.Set(from, MethodLookup{Ref: to, Extra: slices.Clone(layer.extra[from])})
		}
	}
	return next
}

func composeFields(prev *immutable.Map[program.FieldRef, program.FieldRef], layer *Layer) *immutable.Map[program.FieldRef, program.FieldRef] {
	next := prev
	itr := prev.Iterator()
	for !itr.Done() {
		from, to, _ := itr.Next()
		next = next.Set(from, layer.lookupField(to))
	}
	for from, to := range layer.fields {
		if _, ok := prev.Get(from); !ok {
			next = next.Set(from, to)
		}
	}
	return next
}

// composeOriginals re-keys the inverse maps of l by the new references of layer.
func composeOriginals(l *Lens, layer *Layer) (
	representative *immutable.Map[program.MethodRef, program.MethodRef],
	originals *immutable.Map[program.MethodRef, []program.MethodRef],
	extraSignatures *immutable.Map[program.MethodRef, struct{}],
) {
	representative, originals, extraSignatures = l.representative, l.originals, l.extraSignatures

	// drop entries whose key was renamed by this layer, they are re-added below under the new key
	for intermediate := range layer.methods {
		representative = representative.Delete(intermediate)
		originals = originals.Delete(intermediate)
		extraSignatures = extraSignatures.Delete(intermediate)
	}
	for to, froms := range layer.originals {
		var all []program.MethodRef
		for _, from := range froms {
			if prevOriginals, ok := l.originals.Get(from); ok {
				all = append(all, prevOriginals...)
			} else {
				all = append(all, from)
			}
		}
		slices.SortFunc(all, compareMethods)
		originals = originals.Set(to, slices.Compact(all))
	}
	for to, from := range layer.representative {
		if _, isExtra := l.extraSignatures.Get(from); isExtra {
			extraSignatures = extraSignatures.Set(to, struct{}{})
			continue
		}
		if prevRepresentative, ok := l.representative.Get(from); ok {
			from = prevRepresentative
		}
		representative = representative.Set(to, from)
	}
	for to := range layer.extraSignatures.Items() {
		representative = representative.Delete(to)
		extraSignatures = extraSignatures.Set(to, struct{}{})
	}
	return representative, originals, extraSignatures
}

// LookupType maps t, including the element types of arrays.
func (l *Lens) LookupType(t program.Type) program.Type {
	return program.MapType(t, func(base program.Type) program.Type {
		if to, ok := l.types.Get(base); ok {
			return to
		}
		return base
	})
}

// HasTypeMapping reports whether t (its base type for arrays) was renamed.
func (l *Lens) HasTypeMapping(t program.Type) bool {
	_, ok := l.types.Get(t.Base())
	return ok
}

// LookupMethod maps m. A reference that was not mapped explicitly is passed through
// every layer in turn, since a later layer may map what an earlier one produced.
func (l *Lens) LookupMethod(m program.MethodRef) MethodLookup {
	if lookup, ok := l.methods.Get(m); ok {
		return MethodLookup{Ref: lookup.Ref, Extra: slices.Clone(lookup.Extra)}
	}
	ret := MethodLookup{Ref: m}
	for _, layer := range l.layers {
		to, extra := layer.lookupMethod(ret.Ref)
		ret.Ref = to
		ret.Extra = append(ret.Extra, extra...)
	}
	return ret
}

func (l *Lens) LookupField(f program.FieldRef) program.FieldRef {
	if to, ok := l.fields.Get(f); ok {
		return to
	}
	for _, layer := range l.layers {
		f = layer.lookupField(f)
	}
	return f
}

// ExtraParameters returns the arguments that calls to the old reference must append
// after being redirected.
func (l *Lens) ExtraParameters(old program.MethodRef) []ExtraParam {
	return l.LookupMethod(old).Extra
}

// OriginalSignatures returns every pre-optimization method folded into m, or just m
// when m was not produced by any layer.
func (l *Lens) OriginalSignatures(m program.MethodRef) []program.MethodRef {
	if olds, ok := l.originals.Get(m); ok {
		return slices.Clone(olds)
	}
	if l.IsExtraSignature(m) {
		return nil
	}
	return []program.MethodRef{m}
}

// Representative returns the single original signature m stands for. Methods
// synthesized by an optimization have none.
func (l *Lens) Representative(m program.MethodRef) (program.MethodRef, bool) {
	if from, ok := l.representative.Get(m); ok {
		return from, true
	}
	if l.IsExtraSignature(m) {
		return program.MethodRef{}, false
	}
	return m, true
}

// IsExtraSignature reports whether m was synthesized and did not exist before optimization.
func (l *Lens) IsExtraSignature(m program.MethodRef) bool {
	_, ok := l.extraSignatures.Get(m)
	return ok
}

// MappedTypes calls f for every renamed type.
func (l *Lens) MappedTypes(f func(from, to program.Type)) {
	itr := l.types.Iterator()
	for !itr.Done() {
		from, to, _ := itr.Next()
		f(from, to)
	}
}
