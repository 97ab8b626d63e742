package lens

import (
	"testing"

	"github.com/cottand/hmerge/program"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	typeA program.Type = "p.A"
	typeB program.Type = "p.B"
	typeC program.Type = "p.C"

	initA    = program.NewMethodRef(typeA, program.ConstructorName, program.Void)
	initB    = program.NewMethodRef(typeB, program.ConstructorName, program.Void)
	initAInt = program.NewMethodRef(typeA, program.ConstructorName, program.Void, program.Int)
	fB       = program.NewMethodRef(typeB, "f", program.Void)
	fMoved   = program.NewMethodRef(typeA, "f$B", program.Void)
)

// mergeLayer folds p.B into p.A the way class merging does.
func mergeLayer() *Layer {
	b := NewBuilder()
	b.MapType(typeB, typeA)
	b.MoveMethod(fB, fMoved)
	b.MapMethod(initA, initAInt, ConstantParam(program.Int, program.Number(0)))
	b.MapMethod(initB, initAInt, ConstantParam(program.Int, program.Number(1)))
	b.MarkExtraSignature(initAInt)
	b.MapField(program.FieldRef{Holder: typeB, Name: "y", Type: program.Int}, program.FieldRef{Holder: typeA, Name: "x", Type: program.Int})
	return b.Build("merge")
}

// fixLayer rewrites prototypes mentioning p.B, renaming one virtual and padding one constructor.
func fixLayer() *Layer {
	b := NewBuilder()
	b.RewriteSignatures()
	b.MapType(typeB, typeA)
	b.RenameSignature(
		program.Signature{Name: "run", Proto: program.NewProto(program.Void, typeB)},
		program.Signature{Name: "run$1", Proto: program.NewProto(program.Void, typeA)},
	)
	from := program.NewMethodRef(typeA, program.ConstructorName, program.Void, typeB)
	to := program.NewMethodRef(typeA, program.ConstructorName, program.Void, typeA, program.Object)
	b.MapMethod(from, to, UnusedParam(program.Object))
	b.SetRepresentative(to, from)
	return b.Build("fix")
}

func TestIdentity(t *testing.T) {
	l := Identity()
	assert.True(t, l.IsIdentity())
	assert.Equal(t, typeB, l.LookupType(typeB))
	assert.Equal(t, MethodLookup{Ref: fB}, l.LookupMethod(fB))
	assert.Equal(t, []program.MethodRef{fB}, l.OriginalSignatures(fB))
	rep, ok := l.Representative(fB)
	assert.True(t, ok)
	assert.Equal(t, fB, rep)
}

func TestMergeLayer(t *testing.T) {
	l := Identity().Push(mergeLayer())
	assert.False(t, l.IsIdentity())

	assert.Equal(t, typeA, l.LookupType(typeB))
	assert.Equal(t, program.Type("p.A[][]"), l.LookupType("p.B[][]"))
	assert.Equal(t, typeC, l.LookupType(typeC))
	assert.True(t, l.HasTypeMapping("p.B[]"))
	assert.False(t, l.HasTypeMapping(typeA))

	assert.Equal(t, MethodLookup{Ref: fMoved}, l.LookupMethod(fB))
	assert.Equal(t, MethodLookup{
		Ref:   initAInt,
		Extra: []ExtraParam{ConstantParam(program.Int, program.Number(1))},
	}, l.LookupMethod(initB))
	assert.Equal(t, []ExtraParam{ConstantParam(program.Int, program.Number(0))}, l.ExtraParameters(initA))

	// the merge layer moves holders but leaves prototypes to the fix layer
	g := program.NewMethodRef(typeB, "g", program.Void, typeB)
	assert.Equal(t, program.NewMethodRef(typeA, "g", program.Void, typeB), l.LookupMethod(g).Ref)
	z := program.FieldRef{Holder: typeB, Name: "z", Type: typeB}
	assert.Equal(t, program.FieldRef{Holder: typeA, Name: "z", Type: typeB}, l.LookupField(z))
	assert.Equal(t, program.FieldRef{Holder: typeA, Name: "x", Type: program.Int},
		l.LookupField(program.FieldRef{Holder: typeB, Name: "y", Type: program.Int}))

	assert.Equal(t, []program.MethodRef{initA, initB}, l.OriginalSignatures(initAInt))
	assert.True(t, l.IsExtraSignature(initAInt))
	_, ok := l.Representative(initAInt)
	assert.False(t, ok)

	rep, ok := l.Representative(fMoved)
	require.True(t, ok)
	assert.Equal(t, fB, rep)
}

func TestFixLayerComposes(t *testing.T) {
	merged := Identity().Push(mergeLayer())
	l := merged.Push(fixLayer())
	require.Len(t, l.Layers(), 2)
	assert.Equal(t, "merge", l.Layers()[0].Name)
	assert.True(t, l.Layers()[1].RewritesSignatures())

	g := program.NewMethodRef(typeB, "g", program.Void, typeB)
	assert.Equal(t, program.NewMethodRef(typeA, "g", program.Void, typeA), l.LookupMethod(g).Ref)
	z := program.FieldRef{Holder: typeB, Name: "z", Type: typeB}
	assert.Equal(t, program.FieldRef{Holder: typeA, Name: "z", Type: typeA}, l.LookupField(z))

	run := program.NewMethodRef(typeC, "run", program.Void, typeB)
	assert.Equal(t, program.NewMethodRef(typeC, "run$1", program.Void, typeA), l.LookupMethod(run).Ref)
	// pushing did not change the lens underneath
	assert.Equal(t, run, merged.LookupMethod(run).Ref)

	// explicitly mapped entries of the first layer flow through the second
	assert.Equal(t, MethodLookup{Ref: fMoved}, l.LookupMethod(fB))
	assert.Equal(t, []program.MethodRef{initA, initB}, l.OriginalSignatures(initAInt))

	ctor := program.NewMethodRef(typeB, program.ConstructorName, program.Void, typeB)
	padded := program.NewMethodRef(typeA, program.ConstructorName, program.Void, typeA, program.Object)
	got := l.LookupMethod(ctor)
	if diff := cmp.Diff(MethodLookup{Ref: padded, Extra: []ExtraParam{UnusedParam(program.Object)}}, got); diff != "" {
		t.Errorf("LookupMethod(%v) mismatch (-want +got):\n%s", ctor, diff)
	}
	assert.False(t, l.IsExtraSignature(padded))
}

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	assert.True(t, b.IsEmpty())
	b.RewriteSignatures()
	b.MapType(typeA, typeA)
	b.MoveMethod(fB, fB)
	assert.True(t, b.IsEmpty(), "identity renames are not recorded")

	other := NewBuilder()
	other.MoveMethod(fB, fMoved)
	other.MapType(typeB, typeA)
	b.Merge(other)
	assert.False(t, b.IsEmpty())

	later := NewBuilder()
	renamed := fMoved.WithName("f$B$1")
	later.MoveMethod(fB, renamed)
	b.Merge(later)

	layer := b.Build("merged")
	assert.True(t, layer.RewritesSignatures())
	l := Identity().Push(layer)
	assert.Equal(t, renamed, l.LookupMethod(fB).Ref)
	rep, ok := l.Representative(renamed)
	assert.True(t, ok)
	assert.Equal(t, fB, rep)
}

func TestMarkExtraSignatureDropsRepresentative(t *testing.T) {
	b := NewBuilder()
	b.MoveMethod(initA, initAInt)
	b.MarkExtraSignature(initAInt)
	l := Identity().Push(b.Build("extra"))
	_, ok := l.Representative(initAInt)
	assert.False(t, ok)
	assert.Equal(t, []program.MethodRef{initA}, l.OriginalSignatures(initAInt))
}
