package horizontal

import (
	"cmp"
	"slices"

	"github.com/cottand/hmerge/horizontal/dispatch"
	"github.com/cottand/hmerge/horizontal/initializer"
	"github.com/cottand/hmerge/lens"
	"github.com/cottand/hmerge/program"
	"github.com/hashicorp/go-set/v3"
)

// ctorImpl is one group member's constructor.
type ctorImpl struct {
	class  *program.Class
	id     int
	method *program.Method
	// desc is nil when the body is not simple
	desc *initializer.Description
}

// ctorMerger merges the constructors of one group. Constructors are bucketed by
// prototype, and each bucket becomes one or more constructors of the target.
type ctorMerger struct {
	*classMerger
	// used are the prototypes of constructors already declared on the merged target
	used   *set.Set[program.Proto]
	marker program.Type
}

type ctorActionKind int

const (
	// relocateCtor moves a lone constructor to the target
	relocateCtor ctorActionKind = iota
	// collapseCtors replaces equivalent constructors by one built from their Description
	collapseCtors
	// dispatchCtors moves constructors into helpers behind a dispatching constructor
	dispatchCtors
)

type ctorAction struct {
	kind  ctorActionKind
	proto program.Proto
	impls []ctorImpl
}

// planConstructors buckets the constructors of the group. It only reads the group.
func (m *classMerger) planConstructors() []ctorAction {
	if m.isInterfaceGroup() {
		return nil
	}
	byProto := make(map[program.Proto][]ctorImpl)
	for _, c := range m.group.Classes() {
		resolve := m.resolveToTargetFields(c)
		for _, ctor := range c.Constructors() {
			desc, ok := initializer.Analyze(c, ctor, resolve)
			if !ok {
				desc = nil
			}
			impl := ctorImpl{class: c, id: m.group.ClassID(c.Type), method: ctor, desc: desc}
			byProto[ctor.Ref.Proto] = append(byProto[ctor.Ref.Proto], impl)
		}
	}
	var actions []ctorAction
	budget := m.opts.constructorBudget()
	for _, proto := range orderProtos(byProto) {
		actions = append(actions, bucketConstructors(proto, byProto[proto], budget)...)
	}
	return actions
}

func needsClassIDForConstructors(actions []ctorAction) bool {
	for _, a := range actions {
		if a.kind == dispatchCtors {
			return true
		}
	}
	return false
}

func (m *classMerger) mergeConstructors(actions []ctorAction) {
	cm := &ctorMerger{classMerger: m, used: set.New[program.Proto](len(actions))}
	for _, a := range actions {
		switch a.kind {
		case relocateCtor:
			cm.relocate(a.impls[0])
		case collapseCtors:
			cm.synthesizeFromDescription(a.proto, a.impls)
		case dispatchCtors:
			cm.synthesizeDispatch(a.proto, a.impls)
		}
	}
}

// orderProtos sorts prototypes by decreasing arity, then by their string form.
func orderProtos[V any](byProto map[program.Proto]V) []program.Proto {
	protos := make([]program.Proto, 0, len(byProto))
	for p := range byProto {
		protos = append(protos, p)
	}
	slices.SortFunc(protos, func(a, b program.Proto) int {
		return cmp.Or(cmp.Compare(b.Arity(), a.Arity()), cmp.Compare(a.String(), b.String()))
	})
	return protos
}

// resolveToTargetFields resolves fields declared by c to the target slots they were mapped to.
func (m *classMerger) resolveToTargetFields(c *program.Class) initializer.FieldResolver {
	declared := initializer.DeclaredFields(c)
	return func(f program.FieldRef) (program.FieldRef, bool) {
		if _, ok := declared(f); !ok {
			return program.FieldRef{}, false
		}
		return m.group.Fields().Lookup(f)
	}
}

// bucketConstructors decides how the constructors sharing proto are merged. Provably
// equivalent constructors collapse; the others are split into buckets within budget.
func bucketConstructors(proto program.Proto, impls []ctorImpl, budget int) []ctorAction {
	if len(impls) == 1 {
		return []ctorAction{{kind: relocateCtor, proto: proto, impls: impls}}
	}
	byKey := make(map[string][]ctorImpl)
	var keys []string
	for _, impl := range impls {
		if impl.desc == nil {
			continue
		}
		key := impl.desc.Key()
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], impl)
	}
	var actions []ctorAction
	for _, key := range keys {
		if collapsed := byKey[key]; len(collapsed) > 1 {
			actions = append(actions, ctorAction{kind: collapseCtors, proto: proto, impls: collapsed})
		}
	}
	var remaining []ctorImpl
	for _, impl := range impls {
		if impl.desc == nil || len(byKey[impl.desc.Key()]) == 1 {
			remaining = append(remaining, impl)
		}
	}
	for _, bucket := range splitByBudget(remaining, budget) {
		kind := dispatchCtors
		if len(bucket) == 1 {
			kind = relocateCtor
		}
		actions = append(actions, ctorAction{kind: kind, proto: proto, impls: bucket})
	}
	return actions
}

// splitByBudget cuts impls into consecutive buckets whose summed code size stays within
// budget. A constructor larger than the budget gets a bucket of its own.
func splitByBudget(impls []ctorImpl, budget int) [][]ctorImpl {
	var buckets [][]ctorImpl
	var current []ctorImpl
	size := 0
	for _, impl := range impls {
		s := impl.method.Body.CodeSize()
		if len(current) > 0 && size+s > budget {
			buckets = append(buckets, current)
			current, size = nil, 0
		}
		current = append(current, impl)
		size += s
	}
	if len(current) > 0 {
		buckets = append(buckets, current)
	}
	return buckets
}

// markerType returns the group's marker class, creating it on first use.
func (cm *ctorMerger) markerType() program.Type {
	if cm.marker == "" {
		first := cm.group.Classes()[0].Type
		cm.marker = cm.names.FreshType(first.Package(), "$MergeMarker$"+cm.target.Type.SimpleName())
		cm.added = append(cm.added, &program.Class{
			Type:  cm.marker,
			Flags: program.AccPublic | program.AccFinal | program.AccSynthetic,
			Super: program.Object,
		})
		cm.log.Debug("created constructor marker", "type", cm.marker)
	}
	return cm.marker
}

// entryProto appends markers to proto, at least minMarkers of them, until the result is
// not declared on the target yet, then appends the class id when withID is set.
// It returns the prototype and the null arguments callers must pass for the markers.
func (cm *ctorMerger) entryProto(proto program.Proto, minMarkers int, withID bool) (program.Proto, []lens.ExtraParam) {
	var extra []lens.ExtraParam
	candidate := func() program.Proto {
		p := proto
		for _, e := range extra {
			p = p.Append(e.Type)
		}
		if withID {
			p = p.Append(program.Int)
		}
		return p
	}
	for len(extra) < minMarkers || cm.used.Contains(candidate()) {
		extra = append(extra, lens.MarkerParam(cm.markerType()))
	}
	p := candidate()
	cm.used.Insert(p)
	cm.names.ReserveMethod(cm.target.Type, program.ConstructorName, p)
	return p, extra
}

func classIDParam(id int) lens.ExtraParam {
	return lens.ConstantParam(program.Int, program.Number(int64(id)))
}

// relocate moves a constructor to the target unchanged, except that a source
// constructor also records its class id.
func (cm *ctorMerger) relocate(impl ctorImpl) {
	proto, extra := cm.entryProto(impl.method.Ref.Proto, 0, false)
	ref := program.MethodRef{Holder: cm.target.Type, Name: program.ConstructorName, Proto: proto}
	moved := relocated(impl.method, ref)
	if field, ok := cm.group.ClassIDField(); ok && impl.id != 0 {
		moved.Body = storeClassID(moved.Body, field, impl.id)
	}
	cm.target.AddMethod(moved)
	if len(extra) == 0 {
		cm.lens.MoveMethod(impl.method.Ref, ref)
	} else {
		cm.lens.MapMethod(impl.method.Ref, ref, extra...)
		cm.lens.SetRepresentative(ref, impl.method.Ref)
	}
}

// storeClassID prefixes body with a store of id into the class id field of the receiver.
func storeClassID(body *program.Body, field program.FieldRef, id int) *program.Body {
	ret := &program.Body{Regs: body.Regs, Labels: body.Labels}
	b := program.Extend(ret)
	this := b.Arg(0)
	b.Put(this, field, b.Const(program.Number(int64(id))))
	ret.Instrs = append(ret.Instrs, body.Instrs...)
	return ret
}

// synthesizeFromDescription declares one constructor for classes whose constructors
// are provably equivalent. It takes the class id as an argument when the target has
// a class id field.
func (cm *ctorMerger) synthesizeFromDescription(proto program.Proto, impls []ctorImpl) {
	field, withID := cm.group.ClassIDField()
	entryProto, markers := cm.entryProto(proto, 0, withID)
	entry := program.MethodRef{Holder: cm.target.Type, Name: program.ConstructorName, Proto: entryProto}

	b := program.NewBuilder()
	args := make([]program.Reg, entryProto.Arity()+1)
	for i := range args {
		args[i] = b.Arg(i)
	}
	if withID {
		b.Put(args[0], field, args[len(args)-1])
	}
	impls[0].desc.Emit(b, args[:proto.Arity()+1])
	b.ReturnVoid()

	cm.target.AddMethod(&program.Method{
		Ref:         entry,
		Flags:       constructorFlags(impls),
		Body:        b.Body(),
		Synthesized: true,
	})
	for _, impl := range impls {
		extra := markers
		if withID {
			extra = append(slices.Clip(markers), classIDParam(impl.id))
		}
		cm.lens.MapMethod(impl.method.Ref, entry, extra...)
	}
	cm.lens.MarkExtraSignature(entry)
	cm.log.Debug("collapsed equivalent constructors", "constructor", entry, "classes", len(impls),
		"description", impls[0].desc.Hash())
}

// synthesizeDispatch moves every constructor of the bucket into a private helper, and
// declares a constructor taking markers and the class id that calls the right helper.
// The first constructor of the bucket is the fallback.
func (cm *ctorMerger) synthesizeDispatch(proto program.Proto, impls []ctorImpl) {
	entryProto, markers := cm.entryProto(proto, 1, true)
	entry := program.MethodRef{Holder: cm.target.Type, Name: program.ConstructorName, Proto: entryProto}

	cases := make(map[int]dispatch.Target, len(impls))
	var fallback dispatch.Target
	for i, impl := range impls {
		name := cm.names.FreshMethodName(cm.target.Type, "init$"+impl.class.Type.SimpleName(), proto)
		helperRef := program.MethodRef{Holder: cm.target.Type, Name: name, Proto: proto}
		helper := relocated(impl.method, helperRef)
		helper.Flags = helper.Flags.WithVisibility(program.Private)
		helper.Inline = program.InlineForce
		helper.Synthesized = true
		cm.target.AddMethod(helper)
		cm.lens.SetRepresentative(helperRef, impl.method.Ref)

		target := dispatch.Target{Method: helperRef, Invoke: program.InvokeDirect}
		cases[impl.id] = target
		if i == 0 {
			fallback = target
		}
		cm.lens.MapMethod(impl.method.Ref, entry, append(slices.Clip(markers), classIDParam(impl.id))...)
	}
	plan := dispatch.NewPlan(entryProto, proto.Arity(), dispatch.FromParam(entryProto.Arity()), cases, fallback)
	if field, ok := cm.group.ClassIDField(); ok {
		plan.StoreInto = &field
	}
	cm.target.AddMethod(&program.Method{
		Ref:         entry,
		Flags:       constructorFlags(impls),
		Body:        dispatch.Emit(plan),
		Synthesized: true,
	})
	cm.lens.MarkExtraSignature(entry)
	cm.dispatches++
	cm.log.Debug("synthesized constructor dispatch", "constructor", entry, "plan", plan.String())
}

// constructorFlags is the most visible of the flags of impls.
func constructorFlags(impls []ctorImpl) program.Flags {
	flags := impls[0].method.Flags
	visibility := flags.Visibility()
	for _, impl := range impls[1:] {
		visibility = max(visibility, impl.method.Flags.Visibility())
	}
	return flags.WithVisibility(visibility)
}
