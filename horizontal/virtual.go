package horizontal

import (
	"github.com/cottand/hmerge/horizontal/dispatch"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/program"
	"github.com/hashicorp/go-set/v3"
)

// objectMethods are the virtual methods of java.lang.Object
var objectMethods = set.From([]program.Signature{
	{Name: "equals", Proto: program.NewProto(program.Boolean, program.Object)},
	{Name: "hashCode", Proto: program.NewProto(program.Int)},
	{Name: "toString", Proto: program.NewProto(program.String)},
	{Name: "finalize", Proto: program.NewProto(program.Void)},
	{Name: "clone", Proto: program.NewProto(program.Object)},
})

// virtualDecl is one group member's declaration of a virtual method.
type virtualDecl struct {
	class  *program.Class
	id     int
	method *program.Method
}

// virtualBucket holds every declaration of one signature across a group, in group order.
type virtualBucket struct {
	sig   program.Signature
	decls []virtualDecl
	// groupSize is the number of classes that could have declared sig
	groupSize int
	// super is the implementation inherited from above the group, if any
	super *dispatch.Target
}

func (b *virtualBucket) impls() []virtualDecl {
	var ret []virtualDecl
	for _, d := range b.decls {
		if d.method.Body != nil {
			ret = append(ret, d)
		}
	}
	return ret
}

// someClassLacksImpl is true when at least one group member inherits the method instead
// of implementing it.
func (b *virtualBucket) someClassLacksImpl() bool {
	return len(b.impls()) < b.groupSize
}

// needsDispatch is true when the merged method must pick its implementation by class id.
func (b *virtualBucket) needsDispatch() bool {
	n := len(b.impls())
	return n > 1 || n == 1 && b.someClassLacksImpl() && b.super != nil
}

func needsClassID(buckets []*virtualBucket) bool {
	for _, b := range buckets {
		if b.needsDispatch() {
			return true
		}
	}
	return false
}

func (m *classMerger) collectVirtualBuckets() []*virtualBucket {
	var ordered []*virtualBucket
	bySig := make(map[program.Signature]*virtualBucket)
	for _, c := range m.group.Classes() {
		for _, method := range c.VirtualMethods {
			sig := method.Ref.Signature()
			b, ok := bySig[sig]
			if !ok {
				b = &virtualBucket{sig: sig, groupSize: m.group.Size()}
				bySig[sig] = b
				ordered = append(ordered, b)
			}
			b.decls = append(b.decls, virtualDecl{class: c, id: m.group.ClassID(c.Type), method: method})
		}
	}
	if !m.isInterfaceGroup() {
		for _, b := range ordered {
			b.super = m.superImplementation(b.sig)
		}
	}
	return ordered
}

// superImplementation finds what an invoke-super of sig from the target would run.
// A super chain that leaves the program through a library class other than
// java.lang.Object is assumed to implement it.
func (m *classMerger) superImplementation(sig program.Signature) *dispatch.Target {
	super := m.target.Super
	if super == "" {
		return nil
	}
	for t := super; ; {
		c, ok := m.prog.Class(t)
		if !ok {
			if t == program.Object && !objectMethods.Contains(sig) {
				return nil
			}
			break
		}
		if found := c.LookupVirtualMethod(sig); found != nil {
			if found.Body == nil {
				return nil
			}
			break
		}
		if c.Super == "" {
			return nil
		}
		t = c.Super
	}
	return &dispatch.Target{Method: sig.On(super), Invoke: program.InvokeSuper}
}

func (m *classMerger) mergeVirtualMethods(buckets []*virtualBucket) {
	for _, b := range buckets {
		entry := b.sig.On(m.target.Type)
		m.names.ReserveMethod(entry.Holder, entry.Name, entry.Proto)
		switch {
		case m.isInterfaceGroup():
			m.mergeInterfaceMethod(b, entry)
		case b.needsDispatch():
			m.synthesizeVirtualDispatch(b, entry)
		default:
			m.relocateVirtual(b, entry)
		}
		for _, d := range b.decls {
			m.lens.MoveMethod(d.method.Ref, entry)
		}
	}
}

// mergeInterfaceMethod keeps the default method of the bucket if there is one, else the
// first abstract declaration.
func (m *classMerger) mergeInterfaceMethod(b *virtualBucket, entry program.MethodRef) {
	impls := b.impls()
	mergeerr.Assert(len(impls) <= 1, mergeerr.MemberCollision, m.group.String(),
		"%d default methods for %v", len(impls), b.sig)
	chosen := b.decls[0].method
	if len(impls) == 1 {
		chosen = impls[0].method
	}
	m.target.AddMethod(relocated(chosen, entry))
}

// relocateVirtual handles buckets that need no dispatch: at most one implementation,
// and every member without it never reaches a super implementation.
func (m *classMerger) relocateVirtual(b *virtualBucket, entry program.MethodRef) {
	impls := b.impls()
	switch {
	case len(impls) == 1:
		m.target.AddMethod(relocated(impls[0].method, entry))
	case m.target.Flags.IsAbstract():
		m.target.AddMethod(relocated(b.decls[0].method, entry))
	default:
		// only abstract declarations, in a target that can now be instantiated
		method := relocated(b.decls[0].method, entry)
		method.Flags = method.Flags.Without(program.AccAbstract)
		method.Synthesized = true
		method.Body = unreachableBody(b, entry)
		m.target.AddMethod(method)
	}
}

// unreachableBody forwards to the super implementation if there is one. Otherwise no
// instance can receive the call, and the body throws.
func unreachableBody(b *virtualBucket, entry program.MethodRef) *program.Body {
	if b.super != nil {
		return dispatch.Forward(entry.Proto, *b.super)
	}
	builder := program.NewBuilder()
	builder.Throw(builder.Const(program.Null()))
	return builder.Body()
}

// synthesizeVirtualDispatch moves every implementation into a private helper and
// declares entry as a method that picks the helper by this.classId.
func (m *classMerger) synthesizeVirtualDispatch(b *virtualBucket, entry program.MethodRef) {
	classID, ok := m.group.ClassIDField()
	mergeerr.Assert(ok, mergeerr.InvariantViolation, m.group.String(), "dispatch for %v without class id", b.sig)

	impls := b.impls()
	cases := make(map[int]dispatch.Target, len(impls))
	var last dispatch.Target
	for _, impl := range impls {
		name := m.names.FreshMethodName(m.target.Type, b.sig.Name+"$"+impl.class.Type.SimpleName(), b.sig.Proto)
		helperRef := program.MethodRef{Holder: m.target.Type, Name: name, Proto: b.sig.Proto}
		helper := relocated(impl.method, helperRef)
		helper.Flags = helper.Flags.WithVisibility(program.Private).Without(program.AccFinal)
		helper.Inline = program.InlineForce
		helper.Synthesized = true
		m.target.AddMethod(helper)
		m.lens.SetRepresentative(helperRef, impl.method.Ref)

		last = dispatch.Target{Method: helperRef, Invoke: program.InvokeDirect}
		cases[impl.id] = last
	}
	fallback := last
	if b.someClassLacksImpl() && b.super != nil {
		fallback = *b.super
	}
	plan := dispatch.NewPlan(entry.Proto, entry.Proto.Arity(), dispatch.FromField(classID), cases, fallback)

	m.target.AddMethod(&program.Method{
		Ref:         entry,
		Flags:       entryFlags(b),
		Body:        dispatch.Emit(plan),
		Synthesized: true,
	})
	m.lens.MarkExtraSignature(entry)
	m.dispatches++
	m.log.Debug("synthesized virtual dispatch", "method", entry, "plan", plan.String())
}

// entryFlags are the flags of the first declaration, widened to the most visible one.
func entryFlags(b *virtualBucket) program.Flags {
	flags := b.decls[0].method.Flags
	visibility := flags.Visibility()
	for _, d := range b.decls[1:] {
		visibility = max(visibility, d.method.Flags.Visibility())
		if !d.method.Flags.IsFinal() {
			flags = flags.Without(program.AccFinal)
		}
	}
	return flags.WithVisibility(visibility).Without(program.AccAbstract | program.AccNative)
}
