package policy

import (
	"context"
	"strings"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
	"github.com/hashicorp/go-set/v3"
)

// runtimeTypeChecks returns the sorted base types that bodies anywhere in the program
// test or cast against, or load as a class literal.
func runtimeTypeChecks(env Env) ([]program.Type, error) {
	classes := make([]*program.Class, 0, env.Program.Len())
	for c := range env.Program.Classes() {
		classes = append(classes, c)
	}
	perClass := make([][]program.Type, len(classes))
	err := util.ForEach(env.Ctx, env.Workers, len(classes), func(_ context.Context, i int) error {
		perClass[i] = checkedTypes(classes[i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return util.SortedUnion(perClass...), nil
}

// checkedTypes returns the sorted base types that bodies of c check against.
func checkedTypes(c *program.Class) []program.Type {
	var found []program.Type
	for _, m := range c.Methods() {
		if m.Body == nil {
			continue
		}
		for _, in := range m.Body.Instrs {
			switch {
			case in.Op == program.OpInstanceOf, in.Op == program.OpCheckCast:
				found = append(found, in.Type.Base())
			case in.Op == program.OpConst && in.Const.Kind == program.ConstClass:
				found = append(found, in.Const.Class.Base())
			}
		}
	}
	return util.SortedUnique(found)
}

type noDirectRuntimeTypeChecks struct {
	named
	checked *set.Set[program.Type]
}

// NoDirectRuntimeTypeChecks evicts every class that some body tests or casts against, or
// loads as a class literal. After merging, such a check would also succeed for the
// instances of every other class of the group.
func NoDirectRuntimeTypeChecks() MultiClassPolicyWithPreprocessing {
	return &noDirectRuntimeTypeChecks{named: named{"NoDirectRuntimeTypeChecks"}}
}

func (n *noDirectRuntimeTypeChecks) Preprocess(env Env, _ []*group.MergeGroup) error {
	checked, err := runtimeTypeChecks(env)
	if err != nil {
		return err
	}
	n.checked = set.From(checked)
	logger.Debug("collected runtime type checks", "types", len(checked))
	return nil
}

func (n *noDirectRuntimeTypeChecks) Apply(g *group.MergeGroup) []*group.MergeGroup {
	kept := g.Filter(func(c *program.Class) bool {
		return !n.checked.Contains(c.Type)
	})
	if kept.IsEmpty() {
		return nil
	}
	return []*group.MergeGroup{kept}
}

type noIndirectRuntimeTypeChecks struct {
	named
	prog *program.Program
	// interfaces are the checked types that a class may implement: interfaces of the
	// program and library types
	interfaces []program.Type
}

// NoIndirectRuntimeTypeChecks only merges classes that agree on being a subtype of every
// checked interface. The merged class implements the interfaces of all its members, so
// a check against one of them would otherwise start to succeed for the others.
func NoIndirectRuntimeTypeChecks() MultiClassPolicyWithPreprocessing {
	return &noIndirectRuntimeTypeChecks{named: named{"NoIndirectRuntimeTypeChecks"}}
}

func (n *noIndirectRuntimeTypeChecks) Preprocess(env Env, _ []*group.MergeGroup) error {
	checked, err := runtimeTypeChecks(env)
	if err != nil {
		return err
	}
	n.prog = env.Program
	n.interfaces = n.interfaces[:0]
	for _, t := range checked {
		if t == program.Object || t.IsPrimitive() {
			continue
		}
		if c, ok := env.Program.Class(t); ok && !c.IsInterface() {
			continue
		}
		n.interfaces = append(n.interfaces, t)
	}
	logger.Debug("collected checked interfaces", "types", len(n.interfaces))
	return nil
}

// checkedSupertypes lists the checked interfaces c is a proper subtype of, in order.
func (n *noIndirectRuntimeTypeChecks) checkedSupertypes(c *program.Class) string {
	sb := &strings.Builder{}
	for _, i := range n.interfaces {
		if i != c.Type && n.prog.IsSubtype(c.Type, i) {
			sb.WriteString(string(i))
			sb.WriteString(";")
		}
	}
	return sb.String()
}

func (n *noIndirectRuntimeTypeChecks) Apply(g *group.MergeGroup) []*group.MergeGroup {
	if len(n.interfaces) == 0 {
		return []*group.MergeGroup{g}
	}
	return PartitionBy(g, n.checkedSupertypes)
}
