package horizontal

import (
	"github.com/cottand/hmerge/program"
)

// mergeDirectMethods keeps the static and private methods of the target and moves those
// of the sources onto it, suffixing the class name when the signature is taken.
// Constructors and class initializers are handled separately.
func (m *classMerger) mergeDirectMethods() {
	for _, c := range m.group.Classes() {
		for _, method := range c.DirectMethods {
			if method.IsConstructor() || method.IsClassInitializer() {
				continue
			}
			ref := method.Ref.WithHolder(m.target.Type)
			if c.Type == m.target.Type {
				m.target.AddMethod(method.Clone())
				continue
			}
			if !m.names.ReserveMethod(ref.Holder, ref.Name, ref.Proto) {
				ref.Name = m.names.FreshMethodName(ref.Holder, ref.Name+"$"+c.Type.SimpleName(), ref.Proto)
			}
			m.target.AddMethod(relocated(method, ref))
			m.lens.MoveMethod(method.Ref, ref)
		}
	}
}

// mergeStaticFields is the union of the static fields of the group. Source fields whose
// name is taken on the target get a fresh one.
func (m *classMerger) mergeStaticFields() {
	for _, c := range m.group.Classes() {
		for _, field := range c.StaticFields {
			if c.Type == m.target.Type {
				m.target.AddField(field.Clone())
				continue
			}
			ref := field.Ref.WithHolder(m.target.Type)
			if !m.names.ReserveField(ref.Holder, ref.Name) {
				ref.Name = m.names.FreshFieldName(ref.Holder, ref.Name+"$"+c.Type.SimpleName())
			}
			moved := field.Clone()
			moved.Ref = ref
			m.target.AddField(moved)
			m.lens.MapField(field.Ref, ref)
		}
	}
}

// mergeClassInitializers gives the target a single class initializer. A lone initializer
// is moved as is; several become private static helpers that a new initializer calls in
// group order.
func (m *classMerger) mergeClassInitializers() {
	var inits []*program.Method
	var owners []*program.Class
	for _, c := range m.group.Classes() {
		if clinit := c.ClassInitializer(); clinit != nil {
			inits = append(inits, clinit)
			owners = append(owners, c)
		}
	}
	entry := program.MethodRef{
		Holder: m.target.Type,
		Name:   program.ClassInitializerName,
		Proto:  program.NewProto(program.Void),
	}
	switch len(inits) {
	case 0:
		return
	case 1:
		m.target.AddMethod(relocated(inits[0], entry))
		m.lens.MoveMethod(inits[0].Ref, entry)
		return
	}

	b := program.NewBuilder()
	for i, clinit := range inits {
		name := m.names.FreshMethodName(m.target.Type, "clinit$"+owners[i].Type.SimpleName(), entry.Proto)
		helperRef := program.MethodRef{Holder: m.target.Type, Name: name, Proto: entry.Proto}
		helper := relocated(clinit, helperRef)
		helper.Flags = program.AccPrivate | program.AccStatic | program.AccSynthetic
		helper.Inline = program.InlineForce
		helper.Synthesized = true
		m.target.AddMethod(helper)
		m.lens.MapMethod(clinit.Ref, helperRef)
		m.lens.SetRepresentative(helperRef, clinit.Ref)
		b.Invoke(program.InvokeStatic, helperRef)
	}
	b.ReturnVoid()
	m.target.AddMethod(&program.Method{
		Ref:         entry,
		Flags:       program.AccStatic | program.AccSynthetic,
		Body:        b.Body(),
		Synthesized: true,
	})
	m.lens.MarkExtraSignature(entry)
	m.log.Debug("consolidated class initializers", "count", len(inits))
}
