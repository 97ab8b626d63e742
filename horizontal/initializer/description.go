// Package initializer reduces simple instance initializers to a structural Description.
//
// Two constructors with equal Descriptions store the same values into the same fields
// and delegate to the same parent constructor with the same arguments, so one can be
// used for the other. A Description can also be turned back into code.
package initializer

import (
	"strconv"
	"strings"

	"github.com/cottand/hmerge/program"
	"github.com/zeebo/xxh3"
)

type ValueKind int

const (
	// ValueArg is an argument of the constructor; 0 is the receiver
	ValueArg ValueKind = iota
	ValueConst
)

// Value is what an initializer stores into a field or forwards to its parent.
type Value struct {
	Kind  ValueKind
	Arg   int
	Const program.Const
}

func Arg(i int) Value                { return Value{Kind: ValueArg, Arg: i} }
func Constant(c program.Const) Value { return Value{Kind: ValueConst, Const: c} }

func (v Value) String() string {
	if v.Kind == ValueArg {
		return "arg" + strconv.Itoa(v.Arg)
	}
	return v.Const.Repr()
}

type Assignment struct {
	Field program.FieldRef
	Value Value
}

func (a Assignment) String() string {
	return a.Field.Name + ":" + string(a.Field.Type) + "=" + a.Value.String()
}

// Description is the structure of a simple instance initializer: field stores before
// the delegate constructor call, the call itself, and field stores after it.
type Description struct {
	Pre        []Assignment
	Parent     program.MethodRef
	ParentArgs []Value
	Post       []Assignment
}

// Key identifies equivalent Descriptions. Equal keys mean equal Descriptions.
func (d *Description) Key() string {
	sb := &strings.Builder{}
	writeAssignments(sb, d.Pre)
	sb.WriteString("|")
	sb.WriteString(d.Parent.String())
	sb.WriteString("(")
	for i, v := range d.ParentArgs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString(")|")
	writeAssignments(sb, d.Post)
	return sb.String()
}

func writeAssignments(sb *strings.Builder, as []Assignment) {
	for i, a := range as {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(a.String())
	}
}

// Hash is a short digest of Key, for logging.
func (d *Description) Hash() uint64 {
	return xxh3.HashString(d.Key())
}

func (d *Description) String() string { return d.Key() }

// Emit appends the Description's code to b. args[i] holds argument i, args[0] being
// the receiver. Emit neither reads the arguments nor returns.
func (d *Description) Emit(b *program.Builder, args []program.Reg) {
	value := func(v Value) program.Reg {
		if v.Kind == ValueArg {
			return args[v.Arg]
		}
		return b.Const(v.Const)
	}
	this := args[0]
	for _, a := range d.Pre {
		b.Put(this, a.Field, value(a.Value))
	}
	parentArgs := []program.Reg{this}
	for _, v := range d.ParentArgs {
		parentArgs = append(parentArgs, value(v))
	}
	b.Invoke(program.InvokeDirect, d.Parent, parentArgs...)
	for _, a := range d.Post {
		b.Put(this, a.Field, value(a.Value))
	}
}

// Synthesize builds a complete constructor body with the given prototype.
func (d *Description) Synthesize(proto program.Proto) *program.Body {
	b := program.NewBuilder()
	args := make([]program.Reg, proto.Arity()+1)
	for i := range args {
		args[i] = b.Arg(i)
	}
	d.Emit(b, args)
	b.ReturnVoid()
	return b.Body()
}
