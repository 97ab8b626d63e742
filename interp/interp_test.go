package interp

import (
	"testing"

	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/program/progfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shapes = `
classes:
  - name: p.Named
    flags: interface abstract
    methods:
      - name: describe
        proto: ()java.lang.String
        flags: public
        body: |
          v0 = const "shape"
          return v0
  - name: p.Shape
    flags: abstract
    interfaces: [p.Named]
    fields:
      - {name: sides, type: int}
      - {name: CREATED, type: int, flags: static}
    methods:
      - name: <clinit>
        proto: ()void
        flags: static
        body: |
          v0 = const "init Shape"
          invoke-static hmerge.Out.print(java.lang.String)void v0
          return
      - name: <init>
        proto: (int)void
        body: |
          v0 = arg 0
          v1 = arg 1
          invoke-direct java.lang.Object.<init>()void v0
          put p.Shape.sides:int v0 v1
          v2 = static-get p.Shape.CREATED:int
          v3 = const 1
          v4 = add v2 v3
          static-put p.Shape.CREATED:int v4
          return
      - {name: area, proto: ()int, flags: public abstract}
      - name: sides
        proto: ()int
        flags: public
        body: |
          v0 = arg 0
          v1 = get p.Shape.sides:int v0
          return v1
  - name: p.Square
    super: p.Shape
    methods:
      - name: <init>
        proto: ()void
        body: |
          v0 = arg 0
          v1 = const 4
          invoke-direct p.Shape.<init>(int)void v0 v1
          return
      - name: area
        proto: ()int
        flags: public
        body: |
          v0 = const 16
          return v0
  - name: p.Main
    methods:
      - name: run
        proto: ()void
        flags: public static
        body: |
          v0 = new p.Square
          invoke-direct p.Square.<init>()void v0
          v1 = invoke-virtual p.Shape.area()int v0
          invoke-static hmerge.Out.printInt(int)void v1
          v2 = invoke-virtual p.Shape.sides()int v0
          invoke-static hmerge.Out.printInt(int)void v2
          v3 = invoke-interface p.Named.describe()java.lang.String v0
          invoke-static hmerge.Out.print(java.lang.String)void v3
          v4 = instance-of p.Named v0
          invoke-static hmerge.Out.printInt(int)void v4
          v5 = const p.Square.class
          v6 = static-get p.Shape.CREATED:int
          invoke-static hmerge.Out.printInt(int)void v6
          return
      - name: cast
        proto: (java.lang.Object)void
        flags: public static
        body: |
          v0 = arg 0
          v1 = check-cast p.Square v0
          return
      - name: npe
        proto: ()int
        flags: public static
        body: |
          v0 = const null
          v1 = invoke-virtual p.Shape.area()int v0
          return v1
      - name: loop
        proto: ()void
        flags: public static
        body: |
          label L0
          goto L0
      - name: pick
        proto: (int)java.lang.String
        flags: public static
        body: |
          v0 = arg 0
          switch 1:L0 2:L1 default:L2 v0
          label L0
          v1 = const "one"
          return v1
          label L1
          v2 = const "two"
          return v2
          label L2
          v3 = const 0
          if-eq v0 v3 L3
          v4 = const "many"
          return v4
          label L3
          v5 = const "none"
          return v5
`

func TestRun(t *testing.T) {
	prog, _ := progfile.MustParse(shapes)
	m := New(prog)
	_, err := m.Invoke(program.InvokeStatic, program.NewMethodRef("p.Main", "run", program.Void))
	require.NoError(t, err)
	assert.Equal(t, "init Shape\n16\n4\nshape\n1\n1\n", m.Output.String())
}

func TestSwitchAndBranches(t *testing.T) {
	prog, _ := progfile.MustParse(shapes)
	m := New(prog)
	pick := program.NewMethodRef("p.Main", "pick", program.String, program.Int)
	for arg, want := range map[int64]string{0: "none", 1: "one", 2: "two", 7: "many"} {
		got, err := m.Invoke(program.InvokeStatic, pick, arg)
		require.NoError(t, err)
		assert.Equal(t, want, got, arg)
	}
}

func TestThrows(t *testing.T) {
	prog, _ := progfile.MustParse(shapes)
	m := New(prog)

	_, err := m.Invoke(program.InvokeStatic, program.NewMethodRef("p.Main", "npe", program.Int))
	var thrown *Thrown
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "NullPointerException", thrown.Value)

	cast := program.NewMethodRef("p.Main", "cast", program.Void, program.Object)
	main, err := m.allocate("p.Main")
	require.NoError(t, err)
	_, err = m.Invoke(program.InvokeStatic, cast, main)
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "ClassCastException", thrown.Value)

	_, err = m.Invoke(program.InvokeStatic, cast, nil)
	assert.NoError(t, err, "null passes any cast")

	_, err = m.New(program.NewMethodRef("p.Shape", program.ConstructorName, program.Void, program.Int), int64(3))
	assert.ErrorContains(t, err, "abstract")
}

func TestStepLimit(t *testing.T) {
	prog, _ := progfile.MustParse(shapes)
	m := New(prog)
	m.MaxSteps = 100
	_, err := m.Invoke(program.InvokeStatic, program.NewMethodRef("p.Main", "loop", program.Void))
	assert.ErrorContains(t, err, "step limit")
}

func TestNatives(t *testing.T) {
	prog, _ := progfile.MustParse(shapes)
	m := New(prog)
	area := program.NewMethodRef("p.Square", "area", program.Int)
	m.Register(area, func(*Machine, []Value) (Value, error) { return int64(99), nil })
	sq, err := m.New(program.NewMethodRef("p.Square", program.ConstructorName, program.Void))
	require.NoError(t, err)

	got, err := m.Invoke(program.InvokeVirtual, program.NewMethodRef("p.Shape", "area", program.Int), sq)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got)
	assert.Equal(t, int64(4), m.GetField(sq, program.FieldRef{Holder: "p.Square", Name: "sides", Type: program.Int}))

	created, err := m.GetStatic(program.FieldRef{Holder: "p.Shape", Name: "CREATED", Type: program.Int})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)
}
