package program

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMethodRef reads the format produced by MethodRef.String: Holder.name(params)ret
func ParseMethodRef(s string) (MethodRef, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return MethodRef{}, fmt.Errorf("method %q: missing prototype", s)
	}
	dot := strings.LastIndexByte(s[:open], '.')
	if dot <= 0 {
		return MethodRef{}, fmt.Errorf("method %q: missing holder", s)
	}
	proto, err := ParseProto(s[open:])
	if err != nil {
		return MethodRef{}, fmt.Errorf("method %q: %w", s, err)
	}
	return MethodRef{Holder: Type(s[:dot]), Name: s[dot+1 : open], Proto: proto}, nil
}

// ParseFieldRef reads the format produced by FieldRef.String: Holder.name:Type
func ParseFieldRef(s string) (FieldRef, error) {
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return FieldRef{}, fmt.Errorf("field %q: missing type", s)
	}
	dot := strings.LastIndexByte(s[:colon], '.')
	if dot <= 0 {
		return FieldRef{}, fmt.Errorf("field %q: missing holder", s)
	}
	return FieldRef{Holder: Type(s[:dot]), Name: s[dot+1 : colon], Type: Type(s[colon+1:])}, nil
}

// ParseBody reads the one-instruction-per-line format produced by Body.String.
// Blank lines and lines starting with # are ignored.
func ParseBody(text string) (*Body, error) {
	p := &bodyParser{body: &Body{}}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.parseLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %q: %w", i+1, line, err)
		}
	}
	return p.body, nil
}

// MustParseBody is ParseBody for statically known inputs, such as tests.
func MustParseBody(text string) *Body {
	b, err := ParseBody(text)
	if err != nil {
		panic(err)
	}
	return b
}

type bodyParser struct {
	body *Body
}

func (p *bodyParser) reg(s string) (Reg, error) {
	if !strings.HasPrefix(s, "v") {
		return NoReg, fmt.Errorf("expected register, got %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return NoReg, fmt.Errorf("bad register %q", s)
	}
	if n >= p.body.Regs {
		p.body.Regs = n + 1
	}
	return Reg(n), nil
}

func (p *bodyParser) regs(words []string) ([]Reg, error) {
	var ret []Reg
	for _, w := range words {
		r, err := p.reg(w)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, nil
}

func (p *bodyParser) label(s string) (Label, error) {
	if !strings.HasPrefix(s, "L") {
		return 0, fmt.Errorf("expected label, got %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad label %q", s)
	}
	if n >= p.body.Labels {
		p.body.Labels = n + 1
	}
	return Label(n), nil
}

func parseConst(s string) (Const, error) {
	switch {
	case s == "null":
		return Null(), nil
	case strings.HasPrefix(s, `"`):
		str, err := strconv.Unquote(s)
		if err != nil {
			return Const{}, fmt.Errorf("bad string constant %s: %w", s, err)
		}
		return StringConst(str), nil
	case strings.HasSuffix(s, ".class"):
		return ClassConst(Type(strings.TrimSuffix(s, ".class"))), nil
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Const{}, fmt.Errorf("bad constant %s", s)
		}
		return Number(n), nil
	}
}

func (p *bodyParser) parseLine(line string) error {
	in := Instr{Dest: NoReg}
	if lhs, rhs, ok := strings.Cut(line, " = "); ok {
		dest, err := p.reg(strings.TrimSpace(lhs))
		if err != nil {
			return err
		}
		in.Dest = dest
		line = strings.TrimSpace(rhs)
	}
	opWord, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if name, kind, ok := strings.Cut(opWord, "-"); ok && name == "invoke" {
		invoke, known := ParseInvokeKind(kind)
		if !known {
			return fmt.Errorf("unknown invoke kind %q", kind)
		}
		in.Op, in.Invoke = OpInvoke, invoke
	} else {
		op, known := ParseOp(opWord)
		if !known {
			return fmt.Errorf("unknown instruction %q", opWord)
		}
		in.Op = op
	}

	if in.Op == OpConst {
		c, err := parseConst(rest)
		if err != nil {
			return err
		}
		in.Const = c
		p.body.Instrs = append(p.body.Instrs, in)
		return nil
	}

	words := strings.Fields(rest)
	operand := func() (string, error) {
		if len(words) == 0 {
			return "", fmt.Errorf("missing operand")
		}
		w := words[0]
		words = words[1:]
		return w, nil
	}
	var err error
	var w string
	switch in.Op {
	case OpArg:
		if w, err = operand(); err == nil {
			in.Index, err = strconv.Atoi(w)
		}
	case OpCheckCast, OpInstanceOf, OpNew:
		if w, err = operand(); err == nil {
			in.Type = Type(w)
		}
	case OpGet, OpPut, OpStaticGet, OpStaticPut:
		if w, err = operand(); err == nil {
			in.Field, err = ParseFieldRef(w)
		}
	case OpInvoke:
		if w, err = operand(); err == nil {
			in.Method, err = ParseMethodRef(w)
		}
	case OpSwitch:
		for err == nil && len(words) > 0 && strings.Contains(words[0], ":") {
			w, _ = operand()
			key, target, _ := strings.Cut(w, ":")
			var l Label
			if l, err = p.label(target); err != nil {
				break
			}
			if key == "default" {
				in.Label = l
				continue
			}
			var k int64
			if k, err = strconv.ParseInt(key, 10, 32); err == nil {
				in.Cases = append(in.Cases, SwitchCase{Key: int32(k), Target: l})
			}
		}
	case OpIfEq, OpGoto, OpLabel:
		if w, err = operand(); err == nil {
			in.Label, err = p.label(w)
		}
	}
	if err != nil {
		return err
	}
	if in.Args, err = p.regs(words); err != nil {
		return err
	}
	p.body.Instrs = append(p.body.Instrs, in)
	return nil
}
