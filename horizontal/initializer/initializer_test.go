package initializer

import (
	"testing"

	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/program/progfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctors = `
classes:
  - name: p.A
    fields:
      - {name: x, type: int}
      - {name: s, type: java.lang.String}
      - {name: COUNT, type: int, flags: static}
    methods:
      - name: <init>
        proto: (int)void
        body: |
          v0 = arg 0
          v1 = arg 1
          invoke-direct java.lang.Object.<init>()void v0
          put p.A.x:int v0 v1
          return
      - name: <init>
        proto: (java.lang.String)void
        body: |
          v0 = arg 0
          v1 = arg 1
          v2 = check-cast java.lang.String v1
          put p.A.s:java.lang.String v0 v2
          v3 = const 7
          invoke-direct p.A.<init>(int)void v0 v3
          label L0
          return
  - name: p.B
    fields:
      - {name: y, type: int}
    methods:
      - name: <init>
        proto: (int)void
        body: |
          v0 = arg 0
          v1 = arg 1
          invoke-direct java.lang.Object.<init>()void v0
          put p.B.y:int v0 v1
          return
`

func ctor(t *testing.T, c *program.Class, proto string) *program.Method {
	p, err := program.ParseProto(proto)
	require.NoError(t, err)
	m := c.LookupDirectMethod(program.Signature{Name: program.ConstructorName, Proto: p})
	require.NotNil(t, m, proto)
	return m
}

func classes(t *testing.T) (a, b *program.Class) {
	prog, _ := progfile.MustParse(ctors)
	a, ok := prog.Class("p.A")
	require.True(t, ok)
	b, ok = prog.Class("p.B")
	require.True(t, ok)
	return a, b
}

func TestAnalyzeSimpleInitializers(t *testing.T) {
	a, _ := classes(t)
	x := program.FieldRef{Holder: "p.A", Name: "x", Type: program.Int}
	s := program.FieldRef{Holder: "p.A", Name: "s", Type: program.String}

	d, ok := Analyze(a, ctor(t, a, "(int)void"), DeclaredFields(a))
	require.True(t, ok)
	assert.Equal(t, &Description{
		Parent:     program.NewMethodRef(program.Object, program.ConstructorName, program.Void),
		ParentArgs: []Value{},
		Post:       []Assignment{{Field: x, Value: Arg(1)}},
	}, d)
	assert.Equal(t, "|java.lang.Object.<init>()void()|x:int=arg1", d.Key())

	d, ok = Analyze(a, ctor(t, a, "(java.lang.String)void"), DeclaredFields(a))
	require.True(t, ok)
	assert.Equal(t, []Assignment{{Field: s, Value: Arg(1)}}, d.Pre)
	assert.Equal(t, program.NewMethodRef("p.A", program.ConstructorName, program.Void, program.Int), d.Parent)
	assert.Equal(t, []Value{Constant(program.Number(7))}, d.ParentArgs)
	assert.Empty(t, d.Post)

	d, ok = Analyze(a, nil, DeclaredFields(a))
	require.True(t, ok)
	assert.Equal(t, "|java.lang.Object.<init>()void()|", d.Key())
}

func TestAnalyzeRejectsComplexInitializers(t *testing.T) {
	a, _ := classes(t)
	bodies := map[string]string{
		"no delegate call": `
v0 = arg 0
return`,
		"two delegate calls": `
v0 = arg 0
invoke-direct java.lang.Object.<init>()void v0
invoke-direct java.lang.Object.<init>()void v0
return`,
		"stores twice": `
v0 = arg 0
v1 = arg 1
invoke-direct java.lang.Object.<init>()void v0
put p.A.x:int v0 v1
put p.A.x:int v0 v1
return`,
		"stores a static field": `
v0 = arg 0
v1 = arg 1
invoke-direct java.lang.Object.<init>()void v0
put p.A.COUNT:int v0 v1
return`,
		"stores into another object": `
v0 = arg 0
v1 = arg 1
invoke-direct java.lang.Object.<init>()void v0
put p.A.x:int v1 v1
return`,
		"calls a method": `
v0 = arg 0
invoke-direct java.lang.Object.<init>()void v0
invoke-virtual p.A.toString()java.lang.String v0
return`,
		"branches": `
v0 = arg 0
invoke-direct java.lang.Object.<init>()void v0
goto L0
label L0
return`,
		"delegates to an unrelated class": `
v0 = arg 0
invoke-direct p.B.<init>()void v0
return`,
		"code after return": `
v0 = arg 0
invoke-direct java.lang.Object.<init>()void v0
return
v1 = const 1`,
	}
	for name, text := range bodies {
		t.Run(name, func(t *testing.T) {
			m := &program.Method{
				Ref:  program.NewMethodRef("p.A", program.ConstructorName, program.Void, program.Int),
				Body: program.MustParseBody(text),
			}
			_, ok := Analyze(a, m, DeclaredFields(a))
			assert.False(t, ok)
		})
	}

	notCtor := &program.Method{Ref: program.NewMethodRef("p.A", "f", program.Void), Body: program.MustParseBody("return")}
	_, ok := Analyze(a, notCtor, DeclaredFields(a))
	assert.False(t, ok)

	root := &program.Class{Type: "p.Root"}
	_, ok = Analyze(root, nil, DeclaredFields(root))
	assert.False(t, ok, "an implicit constructor needs a parent")
}

func TestEquivalentInitializersShareKey(t *testing.T) {
	a, b := classes(t)
	x := program.FieldRef{Holder: "p.A", Name: "x", Type: program.Int}
	toA := func(f program.FieldRef) (program.FieldRef, bool) {
		if f.Holder == "p.B" && f.Name == "y" {
			return x, true
		}
		return DeclaredFields(a)(f)
	}
	da, ok := Analyze(a, ctor(t, a, "(int)void"), toA)
	require.True(t, ok)
	db, ok := Analyze(b, ctor(t, b, "(int)void"), toA)
	require.True(t, ok)
	assert.Equal(t, da.Key(), db.Key())
	assert.Equal(t, da.Hash(), db.Hash())

	other, ok := Analyze(b, ctor(t, b, "(int)void"), DeclaredFields(b))
	require.True(t, ok)
	assert.NotEqual(t, da.Key(), other.Key())
}

func TestSynthesizeRoundTrip(t *testing.T) {
	a, _ := classes(t)
	for _, proto := range []string{"(int)void", "(java.lang.String)void"} {
		t.Run(proto, func(t *testing.T) {
			m := ctor(t, a, proto)
			d, ok := Analyze(a, m, DeclaredFields(a))
			require.True(t, ok)

			synthesized := &program.Method{Ref: m.Ref, Body: d.Synthesize(m.Ref.Proto)}
			again, ok := Analyze(a, synthesized, DeclaredFields(a))
			require.True(t, ok)
			assert.Equal(t, d.Key(), again.Key())
		})
	}

	d, _ := Analyze(a, ctor(t, a, "(int)void"), DeclaredFields(a))
	assert.Equal(t, `v0 = arg 0
v1 = arg 1
invoke-direct java.lang.Object.<init>()void v0
put p.A.x:int v0 v1
return
`, d.Synthesize(program.NewProto(program.Void, program.Int)).String())
}
