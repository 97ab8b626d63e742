package policy

import (
	"context"
	"slices"
	"testing"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/program/progfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singlesProgram = `
keep:
  classes: [p.Pinned]
  members: ["p.KeptMember.f()void"]
classes:
  - name: p.Plain
  - name: p.Pinned
  - name: p.KeptMember
    methods:
      - {name: f, proto: ()void, flags: public static, body: return}
  - name: p.Native
    methods:
      - {name: n, proto: ()void, flags: public static native}
  - name: p.Enum
    flags: public final enum
  - name: p.Anno
    flags: public interface abstract annotation
  - name: p.PureInit
    fields:
      - {name: K, type: int, flags: static}
    methods:
      - name: <clinit>
        proto: ()void
        flags: static
        body: |
          v0 = const 3
          static-put p.PureInit.K:int v0
          return
  - name: p.NoisyInit
    methods:
      - name: <clinit>
        proto: ()void
        flags: static
        body: |
          v0 = const "hi"
          invoke-static hmerge.Out.print(java.lang.String)void v0
          return
  - name: p.ForeignInit
    methods:
      - name: <clinit>
        proto: ()void
        flags: static
        body: |
          v0 = const 3
          static-put p.PureInit.K:int v0
          return
`

func class(t *testing.T, prog *program.Program, typ program.Type) *program.Class {
	c, ok := prog.Class(typ)
	require.True(t, ok, typ)
	return c
}

func TestSingleClassPolicies(t *testing.T) {
	prog, keep := progfile.MustParse(singlesProgram)
	cases := []struct {
		policy   SingleClassPolicy
		rejected []program.Type
	}{
		{NoPinnedClasses(keep), []program.Type{"p.Pinned"}},
		{NoKeptMembers(keep), []program.Type{"p.KeptMember"}},
		{NoNativeMethods(), []program.Type{"p.Native"}},
		{NoEnums(), []program.Type{"p.Enum"}},
		{NoAnnotations(), []program.Type{"p.Anno"}},
		{NoClassInitializerWithObservableSideEffects(), []program.Type{"p.NoisyInit", "p.ForeignInit"}},
	}
	for _, c := range cases {
		t.Run(c.policy.Name(), func(t *testing.T) {
			var rejected []program.Type
			for cl := range prog.Classes() {
				if !c.policy.CanMerge(cl) {
					rejected = append(rejected, cl.Type)
				}
			}
			assert.Equal(t, c.rejected, rejected)
		})
	}
	assert.True(t, NoClassInitializerWithObservableSideEffects().CanMerge(class(t, prog, "p.PureInit")))
}

// groupOf puts every class of prog into one group, in program order.
func groupOf(prog *program.Program) *group.MergeGroup {
	g := group.New()
	for c := range prog.Classes() {
		g.Add(c)
	}
	return g
}

func env(prog *program.Program) Env {
	return Env{Ctx: context.Background(), Program: prog, Workers: 4}
}

func typesOf(groups []*group.MergeGroup) [][]program.Type {
	ret := make([][]program.Type, len(groups))
	for i, g := range groups {
		ret[i] = g.Types()
	}
	return ret
}

const fiveClasses = `
classes:
  - name: p.C1
  - name: p.C2
  - name: p.C3
  - name: p.C4
  - name: p.C5
`

func TestLimitGroupSize(t *testing.T) {
	prog, _ := progfile.MustParse(fiveClasses)
	e := NewExecutor(LimitGroupSize(3))
	groups, err := e.Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.C1", "p.C2", "p.C3"}, {"p.C4", "p.C5"}}, typesOf(groups))

	// a trailing chunk of one class is dropped
	groups, err = NewExecutor(LimitGroupSize(2)).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.C1", "p.C2"}, {"p.C3", "p.C4"}}, typesOf(groups))

	groups, err = NewExecutor(LimitGroupSize(1)).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestPartitions(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.Base
  - name: p.A
  - name: q.B
  - name: p.C
    super: p.Base
  - name: q.D
  - name: p.E
    super: p.Base
  - name: p.F
`)
	candidates := groupOf(prog).Filter(func(c *program.Class) bool { return c.Type != "p.Base" })
	e := NewExecutor(SameParentClass(), SamePackage())
	groups, err := e.Run(env(prog), []*group.MergeGroup{candidates})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.A", "p.F"}, {"q.B", "q.D"}, {"p.C", "p.E"}}, typesOf(groups))

	stats := e.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, Stats{Policy: "SameParentClass", ClassesIn: 6, ClassesOut: 6, GroupsIn: 1, GroupsOut: 2}, stats[0])
	assert.Equal(t, Stats{Policy: "SamePackage", ClassesIn: 6, ClassesOut: 6, GroupsIn: 2, GroupsOut: 3}, stats[1])
}

func TestNoDirectRuntimeTypeChecks(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.Checked
  - name: p.Literal
  - name: p.Free1
  - name: p.Free2
  - name: p.User
    methods:
      - name: use
        proto: (java.lang.Object)void
        flags: public static
        body: |
          v0 = arg 0
          v1 = instance-of p.Checked v0
          v2 = const p.Literal[].class
          return
`)
	p := NoDirectRuntimeTypeChecks()
	groups, err := NewExecutor(p).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.Free1", "p.Free2", "p.User"}}, typesOf(groups))
}

func TestInterfacePolicies(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.I
    flags: interface abstract
  - name: p.J
    flags: interface abstract
    interfaces: [p.I]
  - name: p.K
    flags: interface abstract
    methods:
      - {name: hello, proto: ()void, flags: public, body: return}
  - name: p.L
    flags: interface abstract
    methods:
      - {name: hello, proto: ()void, flags: public, body: return}
  - name: p.M
    flags: interface abstract
`)
	groups, err := NewExecutor(NoDirectlyConnectedInterfaces(prog)).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.I", "p.K", "p.L", "p.M"}}, typesOf(groups))

	groups, err = NewExecutor(NoDefaultInterfaceMethodCollisions()).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.I", "p.J", "p.K", "p.M"}}, typesOf(groups))

	// neither touches groups of classes
	classes, _ := progfile.MustParse(fiveClasses)
	groups, err = NewExecutor(NoDirectlyConnectedInterfaces(classes), NoDefaultInterfaceMethodCollisions()).
		Run(env(classes), []*group.MergeGroup{groupOf(classes)})
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Equal(t, 5, groups[0].Size())
}

func TestExecutorRunsSingleClassPoliciesFirst(t *testing.T) {
	prog, keep := progfile.MustParse(singlesProgram)
	e := NewExecutor(LimitGroupSize(2), NoPinnedClasses(keep), SamePackage(), NoEnums(), NoAnnotations())
	groups, err := e.Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)

	var order []string
	for _, s := range e.Stats() {
		order = append(order, s.Policy)
	}
	assert.Equal(t, []string{"NoPinnedClasses", "NoEnums", "NoAnnotations", "LimitGroupSize", "SamePackage"}, order)
	assert.Len(t, groups, 3)
	for _, g := range groups {
		assert.False(t, g.Contains("p.Pinned"))
		assert.False(t, g.Contains("p.Enum"))
		assert.Equal(t, 2, g.Size())
	}
}

func TestDefaultPolicies(t *testing.T) {
	prog, keep := progfile.MustParse(singlesProgram)
	groups, err := NewExecutor(Default(prog, keep, 0)...).Run(env(prog), []*group.MergeGroup{groupOf(prog)})
	require.NoError(t, err)
	// p.Anno is evicted as an annotation before it could end up in a mixed group
	assert.Equal(t, [][]program.Type{{"p.Plain", "p.PureInit"}}, typesOf(groups))
}

// misbehaving returns whatever groups it was built with.
type misbehaving struct {
	named
	parts func(g *group.MergeGroup) []*group.MergeGroup
}

func (m misbehaving) Apply(g *group.MergeGroup) []*group.MergeGroup { return m.parts(g) }

func runRecovering(e *Executor, env Env, groups []*group.MergeGroup) (err error) {
	defer mergeerr.Recover(&err)
	_, err = e.Run(env, groups)
	return err
}

func TestExecutorRejectsInvalidPolicyOutput(t *testing.T) {
	prog, _ := progfile.MustParse(fiveClasses)
	foreign := &program.Class{Type: "q.Foreign", Super: program.Object}

	cases := map[string]struct {
		parts func(g *group.MergeGroup) []*group.MergeGroup
		code  mergeerr.ErrCode
	}{
		"empty group": {
			parts: func(g *group.MergeGroup) []*group.MergeGroup { return []*group.MergeGroup{g, group.New()} },
			code:  mergeerr.EmptyGroup,
		},
		"foreign class": {
			parts: func(g *group.MergeGroup) []*group.MergeGroup {
				return []*group.MergeGroup{group.New(append(g.Classes(), foreign)...)}
			},
			code: mergeerr.InvariantViolation,
		},
		"duplicated class": {
			parts: func(g *group.MergeGroup) []*group.MergeGroup { return []*group.MergeGroup{g, g} },
			code:  mergeerr.InvariantViolation,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewExecutor(misbehaving{named: named{name}, parts: c.parts})
			err := runRecovering(e, env(prog), []*group.MergeGroup{groupOf(prog)})
			var failure *mergeerr.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, c.code, failure.Code())
		})
	}
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	prog, _ := progfile.MustParse(fiveClasses)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExecutor(SamePackage()).Run(Env{Ctx: ctx, Program: prog}, []*group.MergeGroup{groupOf(prog)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorDropsGroupsEmptiedByPolicy(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.A
  - name: p.B
  - name: p.Main
    methods:
      - name: check
        proto: (java.lang.Object)void
        flags: public static
        body: |
          v0 = arg 0
          v1 = instance-of p.A v0
          v2 = instance-of p.B v0
          return
`)
	candidates := groupOf(prog).Filter(func(c *program.Class) bool { return c.Type != "p.Main" })
	e := NewExecutor(NoDirectRuntimeTypeChecks())
	groups, err := e.Run(env(prog), []*group.MergeGroup{candidates})
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, []Stats{{Policy: "NoDirectRuntimeTypeChecks", ClassesIn: 2, GroupsIn: 1}}, e.Stats())
}

func TestNoIndirectRuntimeTypeChecks(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.I
    flags: interface abstract
  - name: p.J
    flags: interface abstract
    interfaces: [p.I]
  - name: p.K
    flags: interface abstract
  - name: p.A
    interfaces: [p.I]
  - name: p.B
  - name: p.C
    interfaces: [p.J]
  - name: p.D
    interfaces: [p.K]
  - name: p.E
    interfaces: [java.lang.Runnable]
  - name: p.F
  - name: p.User
    methods:
      - name: use
        proto: (java.lang.Object)void
        flags: public static
        body: |
          v0 = arg 0
          v1 = instance-of p.I v0
          v2 = check-cast java.lang.Runnable v0
          v3 = instance-of p.F v0
          return
`)
	classes := groupOf(prog).Filter(func(c *program.Class) bool { return !c.IsInterface() })
	interfaces := groupOf(prog).Filter(func(c *program.Class) bool { return c.IsInterface() })

	groups, err := NewExecutor(NoIndirectRuntimeTypeChecks()).Run(env(prog), []*group.MergeGroup{classes, interfaces})
	require.NoError(t, err)
	// p.C implements p.I through p.J; checks against classes are left to the direct policy
	assert.Equal(t, [][]program.Type{
		{"p.A", "p.C"},
		{"p.B", "p.D", "p.F", "p.User"},
		{"p.I", "p.K"},
	}, typesOf(groups))
}

func TestNoDefaultInterfaceMethodMerging(t *testing.T) {
	prog, _ := progfile.MustParse(`
classes:
  - name: p.I
    flags: interface abstract
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 1\nreturn v0"}
  - name: p.L
    flags: interface abstract
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 2\nreturn v0"}
  - name: p.A
    interfaces: [p.I]
  - name: p.B
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 3\nreturn v0"}
  - name: p.C
    interfaces: [p.I]
  - name: p.D
    interfaces: [p.L]
  - name: p.E
    interfaces: [p.I]
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 4\nreturn v0"}
  - name: p.F
  - name: p.Base
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 5\nreturn v0"}
  - name: p.G
    super: p.Base
    interfaces: [p.I]
  - name: p.H
    super: p.Base
    methods:
      - {name: m, proto: ()int, flags: public, body: "v0 = const 6\nreturn v0"}
`)
	pick := func(types ...program.Type) *group.MergeGroup {
		return groupOf(prog).Filter(func(c *program.Class) bool { return slices.Contains(types, c.Type) })
	}
	e := NewExecutor(NoDefaultInterfaceMethodMerging(prog))

	groups, err := e.Run(env(prog), []*group.MergeGroup{pick("p.A", "p.B", "p.C", "p.D", "p.E", "p.F")})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.A", "p.C", "p.F"}, {"p.B", "p.E"}}, typesOf(groups))

	// p.G runs p.Base.m, since class methods win over defaults
	groups, err = e.Run(env(prog), []*group.MergeGroup{pick("p.G", "p.H")})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.G", "p.H"}}, typesOf(groups))

	groups, err = e.Run(env(prog), []*group.MergeGroup{pick("p.I", "p.L")})
	require.NoError(t, err)
	assert.Equal(t, [][]program.Type{{"p.I", "p.L"}}, typesOf(groups))
}
