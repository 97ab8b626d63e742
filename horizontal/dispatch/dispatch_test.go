package dispatch

import (
	"testing"

	"github.com/cottand/hmerge/interp"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/program/progfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helpers = `
classes:
  - name: p.A
    fields:
      - {name: $classId, type: int}
    methods:
      - name: init$A
        proto: ()void
        flags: private
        body: |
          v0 = arg 0
          invoke-direct java.lang.Object.<init>()void v0
          return
      - name: init$B
        proto: ()void
        flags: private
        body: |
          v0 = arg 0
          invoke-direct java.lang.Object.<init>()void v0
          return
      - name: name$A
        proto: ()java.lang.String
        flags: private
        body: |
          v0 = const "A"
          return v0
      - name: name$B
        proto: ()java.lang.String
        flags: private
        body: |
          v0 = const "B"
          return v0
      - name: name$C
        proto: ()java.lang.String
        flags: private
        body: |
          v0 = const "C"
          return v0
`

var (
	classID  = program.FieldRef{Holder: "p.A", Name: "$classId", Type: program.Int}
	ctor     = program.NewMethodRef("p.A", program.ConstructorName, program.Void, program.Int)
	nameRef  = program.NewMethodRef("p.A", "name", program.String)
	voidInit = program.NewProto(program.Void)
)

func direct(name string, ret program.Type) Target {
	return Target{Method: program.NewMethodRef("p.A", name, ret), Invoke: program.InvokeDirect}
}

func constructorPlan() *Plan {
	p := NewPlan(ctor.Proto, 0, FromParam(1), map[int]Target{
		0: direct("init$A", program.Void),
		1: direct("init$B", program.Void),
		2: direct("init$A", program.Void),
	}, direct("init$A", program.Void))
	p.StoreInto = &classID
	return p
}

func namePlan() *Plan {
	return NewPlan(nameRef.Proto, 0, FromField(classID), map[int]Target{
		2: direct("name$C", program.String),
		0: direct("name$A", program.String),
		1: direct("name$B", program.String),
	}, direct("name$C", program.String))
}

func TestNewPlan(t *testing.T) {
	p := namePlan()
	assert.False(t, p.IsDirect())
	require.Len(t, p.Cases, 2)
	assert.Equal(t, int32(0), p.Cases[0].Key)
	assert.Equal(t, int32(1), p.Cases[1].Key)
	assert.Equal(t, "dispatch()java.lang.String on this.$classId; "+
		"0 -> direct p.A.name$A()java.lang.String; "+
		"1 -> direct p.A.name$B()java.lang.String; "+
		"default -> direct p.A.name$C()java.lang.String", p.String())

	same := NewPlan(voidInit, 0, FromParam(1), map[int]Target{0: direct("init$A", program.Void)}, direct("init$A", program.Void))
	assert.True(t, same.IsDirect())
}

func TestEmit(t *testing.T) {
	assert.Equal(t, `v0 = arg 0
v1 = arg 1
put p.A.$classId:int v0 v1
switch 1:L0 default:L1 v1
label L0
invoke-direct p.A.init$B()void v0
return
label L1
invoke-direct p.A.init$A()void v0
return
`, Emit(constructorPlan()).String())

	assert.Equal(t, `v0 = arg 0
v1 = get p.A.$classId:int v0
v2 = invoke-direct p.A.name$C()java.lang.String v0
return v2
`, Emit(NewPlan(nameRef.Proto, 0, FromField(classID), nil, direct("name$C", program.String))).String())

	assert.Equal(t, `v0 = arg 0
v1 = arg 1
v2 = invoke-virtual p.B.size(int)int v0 v1
return v2
`, Forward(program.NewProto(program.Int, program.Int), Target{
		Method: program.NewMethodRef("p.B", "size", program.Int, program.Int),
		Invoke: program.InvokeVirtual,
	}).String())
}

func TestEmittedDispatchRuns(t *testing.T) {
	prog, _ := progfile.MustParse(helpers)
	a, ok := prog.Class("p.A")
	require.True(t, ok)
	a.AddMethod(&program.Method{Ref: ctor, Body: Emit(constructorPlan())})
	a.AddMethod(&program.Method{Ref: nameRef, Flags: program.AccPublic, Body: Emit(namePlan())})

	m := interp.New(prog)
	for id, want := range []string{"A", "B", "C"} {
		obj, err := m.New(ctor, int64(id))
		require.NoError(t, err)
		assert.Equal(t, int64(id), m.GetField(obj, classID))
		got, err := m.Invoke(program.InvokeVirtual, nameRef, obj)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
