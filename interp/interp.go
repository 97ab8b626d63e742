// Package interp executes method bodies of a program.Program.
//
// It is a reference interpreter: slow, strict, and small enough to trust. Tests use it
// to check that a transformed program computes what the original one did.
package interp

import (
	"fmt"
	"strings"

	"github.com/cottand/hmerge/program"
	"github.com/pkg/errors"
)

// DefaultMaxSteps bounds the instructions a Machine executes over its lifetime
const DefaultMaxSteps = 1_000_000

// Value is a run-time value: nil for null, int64, string, program.Type for class
// literals, or *Object.
type Value any

// Object is an instance of a class of the program.
type Object struct {
	Class  program.Type
	fields map[program.FieldRef]Value
}

func (o *Object) String() string { return fmt.Sprintf("%v@%p", o.Class, o) }

// Native implements a method that is not part of the program.
type Native func(m *Machine, args []Value) (Value, error)

// Thrown is the error returned when a body throws. Value is the thrown value.
type Thrown struct {
	Value Value
	// Method is where the throw happened
	Method program.MethodRef
}

func (t *Thrown) Error() string { return fmt.Sprintf("%v threw %v", t.Method, t.Value) }

type Machine struct {
	prog    *program.Program
	natives map[program.MethodRef]Native
	statics map[program.FieldRef]Value
	// initialized holds the classes whose initializer ran or is running
	initialized map[program.Type]bool
	steps       int

	MaxSteps int
	// Output collects what bodies printed through the built-in Out natives
	Output strings.Builder
}

var (
	objectInit = program.NewMethodRef(program.Object, program.ConstructorName, program.Void)
	// Print and PrintInt are natives that append to Machine.Output, one value per line
	Print    = program.NewMethodRef("hmerge.Out", "print", program.Void, program.String)
	PrintInt = program.NewMethodRef("hmerge.Out", "printInt", program.Void, program.Int)
)

func New(prog *program.Program) *Machine {
	m := &Machine{
		prog:        prog,
		natives:     make(map[program.MethodRef]Native),
		statics:     make(map[program.FieldRef]Value),
		initialized: make(map[program.Type]bool),
		MaxSteps:    DefaultMaxSteps,
	}
	m.natives[objectInit] = func(*Machine, []Value) (Value, error) { return nil, nil }
	printValue := func(m *Machine, args []Value) (Value, error) {
		_, _ = fmt.Fprintln(&m.Output, args[0])
		return nil, nil
	}
	m.natives[Print] = printValue
	m.natives[PrintInt] = printValue
	return m
}

// Register makes calls to ref run f. It replaces any previous native for ref.
func (m *Machine) Register(ref program.MethodRef, f Native) {
	m.natives[ref] = f
}

// New allocates an instance of t and runs the constructor ctor with args.
func (m *Machine) New(ctor program.MethodRef, args ...Value) (*Object, error) {
	obj, err := m.allocate(ctor.Holder)
	if err != nil {
		return nil, err
	}
	if _, err := m.Invoke(program.InvokeDirect, ctor, append([]Value{obj}, args...)...); err != nil {
		return nil, err
	}
	return obj, nil
}

func (m *Machine) allocate(t program.Type) (*Object, error) {
	c, ok := m.prog.Class(t)
	if !ok {
		return nil, errors.Errorf("cannot instantiate %v: not in the program", t)
	}
	if c.Flags.IsAbstract() || c.IsInterface() {
		return nil, errors.Errorf("cannot instantiate abstract %v", t)
	}
	if err := m.initialize(t); err != nil {
		return nil, err
	}
	return &Object{Class: t, fields: make(map[program.FieldRef]Value)}, nil
}

// Invoke calls ref the way an invoke instruction of the given kind would. For instance
// methods args[0] is the receiver.
func (m *Machine) Invoke(kind program.InvokeKind, ref program.MethodRef, args ...Value) (Value, error) {
	if native, ok := m.natives[ref]; ok {
		return native(m, args)
	}
	method, err := m.resolve(kind, ref, args)
	if err != nil {
		return nil, err
	}
	if native, ok := m.natives[method.Ref]; ok {
		return native(m, args)
	}
	if method.Body == nil {
		return nil, errors.Errorf("%v has no body", method.Ref)
	}
	if kind == program.InvokeStatic {
		if err := m.initialize(method.Ref.Holder); err != nil {
			return nil, err
		}
	}
	return m.run(method, args)
}

func (m *Machine) resolve(kind program.InvokeKind, ref program.MethodRef, args []Value) (*program.Method, error) {
	sig := ref.Signature()
	start := ref.Holder
	if kind == program.InvokeVirtual || kind == program.InvokeInterface {
		if len(args) == 0 {
			return nil, errors.Errorf("%v: missing receiver", ref)
		}
		obj, ok := args[0].(*Object)
		if !ok {
			return nil, &Thrown{Value: "NullPointerException", Method: ref}
		}
		start = obj.Class
	}
	_, method := m.prog.ResolveMethod(start, sig)
	if method != nil && (method.Body != nil || m.natives[method.Ref] != nil) {
		return method, nil
	}
	if kind != program.InvokeDirect && kind != program.InvokeStatic {
		if d := m.findDefault(start, sig); d != nil {
			return d, nil
		}
	}
	if method != nil {
		return method, nil
	}
	return nil, errors.Errorf("cannot resolve %v from %v", sig, start)
}

// findDefault searches the interfaces of t and its super classes for a default method.
func (m *Machine) findDefault(t program.Type, sig program.Signature) *program.Method {
	seen := make(map[program.Type]bool)
	var work []program.Type
	for t != "" {
		c, ok := m.prog.Class(t)
		if !ok {
			break
		}
		work = append(work, c.Interfaces...)
		t = c.Super
	}
	for len(work) > 0 {
		i := work[0]
		work = work[1:]
		if seen[i] {
			continue
		}
		seen[i] = true
		c, ok := m.prog.Class(i)
		if !ok {
			continue
		}
		if method := c.LookupVirtualMethod(sig); method != nil && method.Body != nil {
			return method
		}
		work = append(work, c.Interfaces...)
	}
	return nil
}

// initialize runs the class initializers of t and its super classes, once.
func (m *Machine) initialize(t program.Type) error {
	if m.initialized[t] {
		return nil
	}
	c, ok := m.prog.Class(t)
	if !ok {
		return nil
	}
	m.initialized[t] = true
	if c.Super != "" {
		if err := m.initialize(c.Super); err != nil {
			return err
		}
	}
	if clinit := c.ClassInitializer(); clinit != nil {
		if _, err := m.run(clinit, nil); err != nil {
			return fmt.Errorf("initializing %v: %w", t, err)
		}
	}
	return nil
}

// resolveField finds the declaration a field reference denotes, searching super classes.
func (m *Machine) resolveField(f program.FieldRef) program.FieldRef {
	for t := f.Holder; t != ""; {
		c, ok := m.prog.Class(t)
		if !ok {
			break
		}
		if decl := c.LookupField(f.Name, f.Type); decl != nil {
			return decl.Ref
		}
		t = c.Super
	}
	return f
}

// GetField reads an instance field of obj. Unset fields read as their zero value.
func (m *Machine) GetField(obj *Object, f program.FieldRef) Value {
	if v, ok := obj.fields[m.resolveField(f)]; ok {
		return v
	}
	return zero(f.Type)
}

func (m *Machine) GetStatic(f program.FieldRef) (Value, error) {
	f = m.resolveField(f)
	if err := m.initialize(f.Holder); err != nil {
		return nil, err
	}
	if v, ok := m.statics[f]; ok {
		return v, nil
	}
	return zero(f.Type), nil
}

func zero(t program.Type) Value {
	if t.IsPrimitive() {
		return int64(0)
	}
	return nil
}

func (m *Machine) run(method *program.Method, args []Value) (Value, error) {
	body := method.Body
	labels := make(map[program.Label]int)
	for i, in := range body.Instrs {
		if in.Op == program.OpLabel {
			labels[in.Label] = i
		}
	}
	regs := make([]Value, body.Regs)
	set := func(r program.Reg, v Value) {
		if r != program.NoReg {
			regs[r] = v
		}
	}
	fail := func(format string, a ...any) error {
		return errors.Errorf("%v: "+format, append([]any{method.Ref}, a...)...)
	}
	jump := func(l program.Label) (int, error) {
		pc, ok := labels[l]
		if !ok {
			return 0, fail("unknown label %v", l)
		}
		return pc, nil
	}

	for pc := 0; pc < len(body.Instrs); pc++ {
		m.steps++
		if m.MaxSteps > 0 && m.steps > m.MaxSteps {
			return nil, fail("step limit of %d exceeded", m.MaxSteps)
		}
		in := body.Instrs[pc]
		arg := func(i int) Value { return regs[in.Args[i]] }
		switch in.Op {
		case program.OpArg:
			if in.Index >= len(args) {
				return nil, fail("argument %d out of %d", in.Index, len(args))
			}
			set(in.Dest, args[in.Index])
		case program.OpConst:
			set(in.Dest, constValue(in.Const))
		case program.OpAssume:
			set(in.Dest, arg(0))
		case program.OpCheckCast:
			v := arg(0)
			if obj, ok := v.(*Object); ok && !m.prog.IsSubtype(obj.Class, in.Type) {
				return nil, &Thrown{Value: "ClassCastException", Method: method.Ref}
			}
			set(in.Dest, v)
		case program.OpInstanceOf:
			obj, ok := arg(0).(*Object)
			set(in.Dest, boolValue(ok && m.prog.IsSubtype(obj.Class, in.Type)))
		case program.OpNew:
			obj, err := m.allocate(in.Type)
			if err != nil {
				return nil, err
			}
			set(in.Dest, obj)
		case program.OpGet, program.OpPut:
			obj, ok := arg(0).(*Object)
			if !ok {
				return nil, &Thrown{Value: "NullPointerException", Method: method.Ref}
			}
			if in.Op == program.OpGet {
				set(in.Dest, m.GetField(obj, in.Field))
			} else {
				obj.fields[m.resolveField(in.Field)] = arg(1)
			}
		case program.OpStaticGet:
			v, err := m.GetStatic(in.Field)
			if err != nil {
				return nil, err
			}
			set(in.Dest, v)
		case program.OpStaticPut:
			f := m.resolveField(in.Field)
			if err := m.initialize(f.Holder); err != nil {
				return nil, err
			}
			m.statics[f] = arg(0)
		case program.OpInvoke:
			callArgs := make([]Value, len(in.Args))
			for i := range in.Args {
				callArgs[i] = arg(i)
			}
			v, err := m.Invoke(in.Invoke, in.Method, callArgs...)
			if err != nil {
				return nil, err
			}
			set(in.Dest, v)
		case program.OpAdd:
			x, okX := arg(0).(int64)
			y, okY := arg(1).(int64)
			if !okX || !okY {
				return nil, fail("add of non-numbers %v and %v", arg(0), arg(1))
			}
			set(in.Dest, x+y)
		case program.OpSwitch:
			key, ok := arg(0).(int64)
			if !ok {
				return nil, fail("switch on non-number %v", arg(0))
			}
			target := in.Label
			for _, c := range in.Cases {
				if int64(c.Key) == key {
					target = c.Target
					break
				}
			}
			next, err := jump(target)
			if err != nil {
				return nil, err
			}
			pc = next
		case program.OpIfEq:
			if arg(0) == arg(1) {
				next, err := jump(in.Label)
				if err != nil {
					return nil, err
				}
				pc = next
			}
		case program.OpGoto:
			next, err := jump(in.Label)
			if err != nil {
				return nil, err
			}
			pc = next
		case program.OpLabel:
		case program.OpReturn:
			if len(in.Args) == 0 {
				return nil, nil
			}
			return arg(0), nil
		case program.OpThrow:
			return nil, &Thrown{Value: arg(0), Method: method.Ref}
		default:
			return nil, fail("unknown instruction %v", in)
		}
	}
	return nil, fail("fell off the end of the body")
}

func constValue(c program.Const) Value {
	switch c.Kind {
	case program.ConstNumber:
		return c.Number
	case program.ConstString:
		return c.String
	case program.ConstClass:
		return c.Class
	default:
		return nil
	}
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
