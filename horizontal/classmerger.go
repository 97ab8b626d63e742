package horizontal

import (
	"log/slog"
	"slices"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/lens"
	"github.com/cottand/hmerge/program"
)

// classMerger folds the sources of one frozen group into a copy of its target.
//
// plan only reads the program and may run concurrently with the plans of other groups:
// every name it reserves lives on its own target or in a fresh type. commit installs
// the result and must run on a single goroutine.
type classMerger struct {
	group *group.MergeGroup
	prog  *program.Program
	names *program.Names
	opts  Options
	log   *slog.Logger

	target *program.Class
	lens   *lens.Builder
	// added holds classes created for this group, such as constructor markers
	added []*program.Class
	// dispatches counts synthesized dispatch methods, for logging
	dispatches int
}

func newClassMerger(g *group.MergeGroup, prog *program.Program, names *program.Names, opts Options) *classMerger {
	return &classMerger{
		group: g,
		prog:  prog,
		names: names,
		opts:  opts,
		log:   logger.With("target", g.Target().Type),
		lens:  lens.NewBuilder(),
	}
}

func (m *classMerger) sources() []*program.Class { return m.group.Sources() }

func (m *classMerger) isInterfaceGroup() bool { return m.group.IsInterfaceGroup() }

// plan computes the merged target class and the renames of this group.
// Fatal inconsistencies panic with a *mergeerr.Failure.
func (m *classMerger) plan() {
	original := m.group.Target()
	m.target = original.Clone()
	// members are rebuilt by the steps below, in declaration order
	m.target.DirectMethods = nil
	m.target.VirtualMethods = nil
	m.target.StaticFields = nil
	m.target.InstanceFields = nil

	for _, source := range m.sources() {
		mergeerr.Assert(source.Type != original.Type, mergeerr.InvariantViolation, m.group.String(),
			"target %v is also a source", source.Type)
		m.lens.MapType(source.Type, original.Type)
	}

	m.relaxFlags()
	virtuals := m.collectVirtualBuckets()
	ctors := m.planConstructors()
	if !m.isInterfaceGroup() && (needsClassID(virtuals) || needsClassIDForConstructors(ctors)) {
		m.addClassIDField()
	}
	m.mergeInterfaces()
	m.mergeVirtualMethods(virtuals)
	m.mergeConstructors(ctors)
	m.mergeDirectMethods()
	m.mergeStaticFields()
	m.mergeClassInitializers()
	m.mergeInstanceFields()

	m.log.Debug("planned merge", "group", m.group.Types(), "dispatches", m.dispatches,
		"methods", len(m.target.DirectMethods)+len(m.target.VirtualMethods))
}

// relaxFlags makes the target as permissive as its most permissive member.
func (m *classMerger) relaxFlags() {
	flags := m.target.Flags
	visibility := flags.Visibility()
	for _, source := range m.sources() {
		if !source.Flags.IsAbstract() && !m.isInterfaceGroup() {
			flags = flags.Without(program.AccAbstract)
		}
		if !source.Flags.IsFinal() {
			flags = flags.Without(program.AccFinal)
		}
		visibility = max(visibility, source.Flags.Visibility())
	}
	m.target.Flags = flags.WithVisibility(visibility)
}

func (m *classMerger) addClassIDField() {
	name := m.names.FreshFieldName(m.target.Type, "$classId")
	ref := program.FieldRef{Holder: m.target.Type, Name: name, Type: program.Int}
	m.group.SetClassIDField(ref)
	m.log.Debug("added class id field", "field", ref)
}

// mergeInterfaces appends the interfaces of the sources that the target lacks, in order.
func (m *classMerger) mergeInterfaces() {
	for _, source := range m.sources() {
		for _, i := range source.Interfaces {
			if !slices.Contains(m.target.Interfaces, i) {
				m.target.Interfaces = append(m.target.Interfaces, i)
			}
		}
	}
}

// mergeInstanceFields installs the slots of the group's field mapping, then the class id.
func (m *classMerger) mergeInstanceFields() {
	mapping := m.group.Fields()
	for _, slot := range mapping.Slots() {
		m.target.AddField(slot.Field.Clone())
	}
	mapping.Mapped(m.lens.MapField)
	if ref, ok := m.group.ClassIDField(); ok {
		m.target.AddField(&program.Field{
			Ref:   ref,
			Flags: program.AccPrivate | program.AccFinal | program.AccSynthetic,
		})
	}
}

// relocated returns a copy of method declared on the target under ref.
func relocated(method *program.Method, ref program.MethodRef) *program.Method {
	moved := method.Clone()
	moved.Ref = ref
	return moved
}

// commit installs the merged target and deletes the sources from prog.
func (m *classMerger) commit(prog *program.Program, merged *group.MergedClasses) error {
	if err := prog.Replace(m.target); err != nil {
		return mergeerr.Wrap(err, mergeerr.MissingClass, m.group.String())
	}
	for _, c := range m.added {
		if err := prog.Add(c); err != nil {
			return mergeerr.Wrap(err, mergeerr.MemberCollision, m.group.String())
		}
	}
	prog.Remove(m.group.Types()[1:]...)
	merged.Add(m.group)
	return nil
}
