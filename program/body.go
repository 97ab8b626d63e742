package program

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Reg is a virtual register of a Body. Registers are written once per execution
// path by the instruction that names them as Dest.
type Reg int

const NoReg Reg = -1

func (r Reg) String() string {
	if r == NoReg {
		return "_"
	}
	return "v" + strconv.Itoa(int(r))
}

type Label int

func (l Label) String() string { return "L" + strconv.Itoa(int(l)) }

type Op int

const (
	OpArg        Op = iota // Dest = argument #Index, argument 0 is the receiver of instance methods
	OpConst                // Dest = Const
	OpAssume               // Dest = Args[0], refined by an assumption about its value
	OpCheckCast            // Dest = (Type) Args[0]
	OpInstanceOf           // Dest = Args[0] instanceof Type
	OpNew                  // Dest = new uninitialized Type
	OpGet                  // Dest = Args[0].Field
	OpPut                  // Args[0].Field = Args[1]
	OpStaticGet            // Dest = Field
	OpStaticPut            // Field = Args[0]
	OpInvoke               // Dest = Method(Args...), Dest may be NoReg
	OpAdd                  // Dest = Args[0] + Args[1]
	OpSwitch               // jump to the case matching Args[0], otherwise to Label
	OpIfEq                 // jump to Label when Args[0] == Args[1]
	OpGoto                 // jump to Label
	OpLabel                // jump target
	OpReturn               // return Args[0], or nothing when Args is empty
	OpThrow                // throw Args[0]
)

var opNames = map[Op]string{
	OpArg:        "arg",
	OpConst:      "const",
	OpAssume:     "assume",
	OpCheckCast:  "check-cast",
	OpInstanceOf: "instance-of",
	OpNew:        "new",
	OpGet:        "get",
	OpPut:        "put",
	OpStaticGet:  "static-get",
	OpStaticPut:  "static-put",
	OpInvoke:     "invoke",
	OpAdd:        "add",
	OpSwitch:     "switch",
	OpIfEq:       "if-eq",
	OpGoto:       "goto",
	OpLabel:      "label",
	OpReturn:     "return",
	OpThrow:      "throw",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp is the inverse of Op.String
func ParseOp(s string) (Op, bool) {
	for op, name := range opNames {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

// IsBranch reports whether the instruction may transfer control anywhere but the next instruction.
func (o Op) IsBranch() bool {
	switch o {
	case OpSwitch, OpIfEq, OpGoto, OpThrow:
		return true
	}
	return false
}

type InvokeKind int

const (
	InvokeDirect InvokeKind = iota
	InvokeVirtual
	InvokeSuper
	InvokeStatic
	InvokeInterface
)

var invokeNames = []string{"direct", "virtual", "super", "static", "interface"}

func (k InvokeKind) String() string {
	if int(k) < len(invokeNames) {
		return invokeNames[k]
	}
	return fmt.Sprintf("invoke(%d)", int(k))
}

func ParseInvokeKind(s string) (InvokeKind, bool) {
	i := slices.Index(invokeNames, s)
	return InvokeKind(i), i >= 0
}

type ConstKind int

const (
	ConstNull ConstKind = iota
	ConstNumber
	ConstString
	ConstClass
)

// Const is a constant operand: null, a number, a string or a class literal.
type Const struct {
	Kind   ConstKind
	Number int64
	String string
	Class  Type
}

func Null() Const                { return Const{Kind: ConstNull} }
func Number(n int64) Const       { return Const{Kind: ConstNumber, Number: n} }
func StringConst(s string) Const { return Const{Kind: ConstString, String: s} }
func ClassConst(t Type) Const    { return Const{Kind: ConstClass, Class: t} }

func (c Const) Repr() string {
	switch c.Kind {
	case ConstNumber:
		return strconv.FormatInt(c.Number, 10)
	case ConstString:
		return strconv.Quote(c.String)
	case ConstClass:
		return string(c.Class) + ".class"
	default:
		return "null"
	}
}

type SwitchCase struct {
	Key    int32
	Target Label
}

// Instr is a single instruction. Which fields are meaningful depends on Op.
type Instr struct {
	Op     Op
	Dest   Reg
	Args   []Reg
	Index  int
	Const  Const
	Type   Type
	Field  FieldRef
	Method MethodRef
	Invoke InvokeKind
	Cases  []SwitchCase
	Label  Label
}

func (in Instr) String() string {
	sb := &strings.Builder{}
	if in.Dest != NoReg && in.hasDest() {
		fmt.Fprintf(sb, "%v = ", in.Dest)
	}
	sb.WriteString(in.Op.String())
	switch in.Op {
	case OpArg:
		fmt.Fprintf(sb, " %d", in.Index)
	case OpConst:
		fmt.Fprintf(sb, " %s", in.Const.Repr())
	case OpCheckCast, OpInstanceOf, OpNew:
		fmt.Fprintf(sb, " %s", in.Type)
	case OpGet, OpPut, OpStaticGet, OpStaticPut:
		fmt.Fprintf(sb, " %s", in.Field)
	case OpInvoke:
		fmt.Fprintf(sb, "-%s %s", in.Invoke, in.Method)
	case OpSwitch:
		for _, c := range in.Cases {
			fmt.Fprintf(sb, " %d:%v", c.Key, c.Target)
		}
		fmt.Fprintf(sb, " default:%v", in.Label)
	case OpIfEq, OpGoto, OpLabel:
		fmt.Fprintf(sb, " %v", in.Label)
	}
	for _, a := range in.Args {
		fmt.Fprintf(sb, " %v", a)
	}
	return sb.String()
}

func (in Instr) hasDest() bool {
	switch in.Op {
	case OpPut, OpStaticPut, OpSwitch, OpIfEq, OpGoto, OpLabel, OpReturn, OpThrow:
		return false
	}
	return true
}

// Body is the code of a method.
type Body struct {
	Instrs []Instr
	Regs   int
	Labels int
}

func (b *Body) NewReg() Reg {
	r := Reg(b.Regs)
	b.Regs++
	return r
}

func (b *Body) NewLabel() Label {
	l := Label(b.Labels)
	b.Labels++
	return l
}

func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	instrs := make([]Instr, len(b.Instrs))
	for i, in := range b.Instrs {
		in.Args = slices.Clone(in.Args)
		in.Cases = slices.Clone(in.Cases)
		instrs[i] = in
	}
	return &Body{Instrs: instrs, Regs: b.Regs, Labels: b.Labels}
}

// CodeSize estimates the encoded size of the body in code units.
func (b *Body) CodeSize() int {
	if b == nil {
		return 0
	}
	size := 0
	for _, in := range b.Instrs {
		switch in.Op {
		case OpLabel:
		case OpInvoke:
			size += 3 + len(in.Args)
		case OpSwitch:
			size += 4 + 2*len(in.Cases)
		default:
			size += 2
		}
	}
	return size
}

func (b *Body) String() string {
	if b == nil {
		return "<no body>"
	}
	sb := &strings.Builder{}
	for _, in := range b.Instrs {
		sb.WriteString(in.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Builder appends instructions to a Body.
type Builder struct {
	body *Body
}

func NewBuilder() *Builder {
	return &Builder{body: &Body{}}
}

// Extend continues building onto an existing body.
func Extend(b *Body) *Builder {
	return &Builder{body: b}
}

func (b *Builder) Body() *Body { return b.body }

func (b *Builder) emit(in Instr) Reg {
	b.body.Instrs = append(b.body.Instrs, in)
	return in.Dest
}

func (b *Builder) Arg(i int) Reg {
	return b.emit(Instr{Op: OpArg, Dest: b.body.NewReg(), Index: i})
}

func (b *Builder) Const(c Const) Reg {
	return b.emit(Instr{Op: OpConst, Dest: b.body.NewReg(), Const: c})
}

func (b *Builder) Assume(r Reg) Reg {
	return b.emit(Instr{Op: OpAssume, Dest: b.body.NewReg(), Args: []Reg{r}})
}

func (b *Builder) CheckCast(r Reg, t Type) Reg {
	return b.emit(Instr{Op: OpCheckCast, Dest: b.body.NewReg(), Args: []Reg{r}, Type: t})
}

func (b *Builder) InstanceOf(r Reg, t Type) Reg {
	return b.emit(Instr{Op: OpInstanceOf, Dest: b.body.NewReg(), Args: []Reg{r}, Type: t})
}

func (b *Builder) New(t Type) Reg {
	return b.emit(Instr{Op: OpNew, Dest: b.body.NewReg(), Type: t})
}

func (b *Builder) Get(obj Reg, f FieldRef) Reg {
	return b.emit(Instr{Op: OpGet, Dest: b.body.NewReg(), Args: []Reg{obj}, Field: f})
}

func (b *Builder) Put(obj Reg, f FieldRef, val Reg) {
	b.emit(Instr{Op: OpPut, Dest: NoReg, Args: []Reg{obj, val}, Field: f})
}

func (b *Builder) StaticGet(f FieldRef) Reg {
	return b.emit(Instr{Op: OpStaticGet, Dest: b.body.NewReg(), Field: f})
}

func (b *Builder) StaticPut(f FieldRef, val Reg) {
	b.emit(Instr{Op: OpStaticPut, Dest: NoReg, Args: []Reg{val}, Field: f})
}

func (b *Builder) Add(x, y Reg) Reg {
	return b.emit(Instr{Op: OpAdd, Dest: b.body.NewReg(), Args: []Reg{x, y}})
}

// Invoke emits a call. The result register is NoReg for void methods.
func (b *Builder) Invoke(kind InvokeKind, m MethodRef, args ...Reg) Reg {
	dest := NoReg
	if m.Proto.Return != Void {
		dest = b.body.NewReg()
	}
	return b.emit(Instr{Op: OpInvoke, Dest: dest, Args: args, Method: m, Invoke: kind})
}

func (b *Builder) NewLabel() Label { return b.body.NewLabel() }

func (b *Builder) Label(l Label) {
	b.emit(Instr{Op: OpLabel, Dest: NoReg, Label: l})
}

func (b *Builder) Goto(l Label) {
	b.emit(Instr{Op: OpGoto, Dest: NoReg, Label: l})
}

func (b *Builder) IfEq(x, y Reg, l Label) {
	b.emit(Instr{Op: OpIfEq, Dest: NoReg, Args: []Reg{x, y}, Label: l})
}

func (b *Builder) Switch(r Reg, cases []SwitchCase, fallback Label) {
	b.emit(Instr{Op: OpSwitch, Dest: NoReg, Args: []Reg{r}, Cases: cases, Label: fallback})
}

func (b *Builder) Return(r Reg) {
	b.emit(Instr{Op: OpReturn, Dest: NoReg, Args: []Reg{r}})
}

func (b *Builder) ReturnVoid() {
	b.emit(Instr{Op: OpReturn, Dest: NoReg})
}

func (b *Builder) Throw(r Reg) {
	b.emit(Instr{Op: OpThrow, Dest: NoReg, Args: []Reg{r}})
}
