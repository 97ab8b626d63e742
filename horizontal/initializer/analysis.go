package initializer

import (
	"github.com/cottand/hmerge/program"
)

// FieldResolver maps a field stored by an initializer to the field the Description
// should name. It reports false for fields that do not belong to the class.
type FieldResolver func(f program.FieldRef) (program.FieldRef, bool)

// DeclaredFields resolves only instance fields declared by c, to themselves.
func DeclaredFields(c *program.Class) FieldResolver {
	return func(f program.FieldRef) (program.FieldRef, bool) {
		if f.Holder != c.Type {
			return program.FieldRef{}, false
		}
		declared := c.LookupField(f.Name, f.Type)
		if declared == nil || declared.Flags.IsStatic() {
			return program.FieldRef{}, false
		}
		return f, true
	}
}

// Analyze describes the instance initializer m of c. A nil m stands for the implicit
// default constructor, which only calls the parent's no-argument constructor.
//
// ok is false when the body is not simple: anything but argument reads, assumptions,
// casts, constants, a single store per field of this, and exactly one call to a
// constructor of c or of its parent, in straight-line code.
func Analyze(c *program.Class, m *program.Method, resolve FieldResolver) (d *Description, ok bool) {
	if m == nil {
		if c.Super == "" {
			return nil, false
		}
		return &Description{Parent: program.NewMethodRef(c.Super, program.ConstructorName, program.Void)}, true
	}
	if !m.IsConstructor() || m.Body == nil {
		return nil, false
	}
	a := &analysis{
		class:   c,
		resolve: resolve,
		values:  make(map[program.Reg]Value),
		stored:  make(map[program.FieldRef]bool),
		d:       &Description{},
	}
	instrs := m.Body.Instrs
	for i, in := range instrs {
		if in.Op == program.OpReturn {
			if len(in.Args) != 0 || !onlyLabelsAfter(instrs[i+1:]) {
				return nil, false
			}
			return a.d, a.delegated
		}
		if !a.step(in) {
			return nil, false
		}
	}
	return nil, false
}

type analysis struct {
	class     *program.Class
	resolve   FieldResolver
	values    map[program.Reg]Value
	stored    map[program.FieldRef]bool
	delegated bool
	d         *Description
}

func (a *analysis) value(r program.Reg) (Value, bool) {
	v, ok := a.values[r]
	return v, ok
}

func (a *analysis) isThis(r program.Reg) bool {
	v, ok := a.value(r)
	return ok && v.Kind == ValueArg && v.Arg == 0
}

func (a *analysis) step(in program.Instr) bool {
	switch in.Op {
	case program.OpLabel:
		return true
	case program.OpArg:
		a.values[in.Dest] = Arg(in.Index)
		return true
	case program.OpConst:
		a.values[in.Dest] = Constant(in.Const)
		return true
	case program.OpAssume, program.OpCheckCast:
		v, ok := a.value(in.Args[0])
		if ok {
			a.values[in.Dest] = v
		}
		return ok
	case program.OpPut:
		return a.put(in)
	case program.OpInvoke:
		return a.delegate(in)
	}
	return false
}

func (a *analysis) put(in program.Instr) bool {
	if !a.isThis(in.Args[0]) {
		return false
	}
	field, ok := a.resolve(in.Field)
	if !ok || a.stored[field] {
		return false
	}
	v, ok := a.value(in.Args[1])
	if !ok {
		return false
	}
	a.stored[field] = true
	assignment := Assignment{Field: field, Value: v}
	if a.delegated {
		a.d.Post = append(a.d.Post, assignment)
	} else {
		a.d.Pre = append(a.d.Pre, assignment)
	}
	return true
}

func (a *analysis) delegate(in program.Instr) bool {
	target := in.Method
	if a.delegated || in.Invoke != program.InvokeDirect || !target.IsConstructor() {
		return false
	}
	if target.Holder != a.class.Super && target.Holder != a.class.Type {
		return false
	}
	if len(in.Args) == 0 || !a.isThis(in.Args[0]) {
		return false
	}
	args := make([]Value, 0, len(in.Args)-1)
	for _, r := range in.Args[1:] {
		v, ok := a.value(r)
		if !ok {
			return false
		}
		args = append(args, v)
	}
	a.delegated = true
	a.d.Parent = target
	a.d.ParentArgs = args
	return true
}

func onlyLabelsAfter(instrs []program.Instr) bool {
	for _, in := range instrs {
		if in.Op != program.OpLabel {
			return false
		}
	}
	return true
}
