package progfile

import (
	"bytes"
	"testing"

	"github.com/cottand/hmerge/program"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
keep:
  classes: [p.Main]
  members: ["p.A.getX()int"]
classes:
  - name: p.I
    flags: public interface abstract
    super: "-"
    methods:
      - {name: run, proto: ()void, flags: public abstract}
  - name: p.A
    flags: public final
    interfaces: [p.I]
    fields:
      - {name: x, type: int, flags: private}
      - {name: COUNT, type: int, flags: private static}
    methods:
      - name: <init>
        proto: (int)void
        flags: public
        body: |
          v0 = arg 0
          v1 = arg 1
          invoke-direct java.lang.Object.<init>()void v0
          put p.A.x:int v0 v1
          return
      - name: getX
        proto: ()int
        flags: public
        inline: true
        body: |
          v0 = arg 0
          v1 = get p.A.x:int v0
          return v1
  - name: p.Main
    flags: public
    methods:
      - name: run
        proto: ()void
        flags: public static
        body: |
          v0 = new p.A
          v1 = const 7
          invoke-direct p.A.<init>(int)void v0 v1
          v2 = invoke-virtual p.A.getX()int v0
          invoke-static hmerge.Out.printInt(int)void v2
          return
`

func TestParse(t *testing.T) {
	prog, keep := MustParse(sample)
	assert.Equal(t, []program.Type{"p.I", "p.A", "p.Main"}, prog.Types())
	assert.True(t, keep.PinnedClasses["p.Main"])
	assert.False(t, keep.IsRenameAllowed("p.Main"))
	assert.True(t, keep.IsRenameAllowed("p.A"))
	assert.False(t, keep.IsShrinkAllowed(program.NewMethodRef("p.A", "getX", program.Int)))

	i, ok := prog.Class("p.I")
	require.True(t, ok)
	assert.True(t, i.IsInterface())
	assert.Equal(t, program.Type(""), i.Super)

	a, ok := prog.Class("p.A")
	require.True(t, ok)
	assert.Equal(t, program.Object, a.Super)
	assert.Equal(t, []program.Type{"p.I"}, a.Interfaces)
	require.Len(t, a.InstanceFields, 1)
	require.Len(t, a.StaticFields, 1)
	assert.Equal(t, "COUNT", a.StaticFields[0].Ref.Name)
	require.Len(t, a.DirectMethods, 1)
	require.Len(t, a.VirtualMethods, 1)
	getX := a.VirtualMethods[0]
	assert.Equal(t, program.InlineForce, getX.Inline)
	assert.Len(t, getX.Body.Instrs, 3)
}

func TestRoundTrip(t *testing.T) {
	prog, _ := MustParse(sample)
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, prog))

	again, _, err := Parse(buf.Bytes())
	require.NoError(t, err)
	if diff := cmp.Diff(FromProgram(prog), FromProgram(again)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown flag":   "classes: [{name: p.A, flags: sealed}]",
		"unknown key":    "classes: [{name: p.A, colour: red}]",
		"missing name":   "classes: [{flags: public}]",
		"bad proto":      "classes: [{name: p.A, methods: [{name: f, proto: void}]}]",
		"bad body":       "classes: [{name: p.A, methods: [{name: f, proto: ()void, body: \"v0 = jump\"}]}]",
		"duplicate type": "classes: [{name: p.A}, {name: p.A}]",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestEmptyDocument(t *testing.T) {
	prog, _, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Len())
}
