package dispatch

import (
	"github.com/cottand/hmerge/program"
)

// Emit lowers p into a method body.
func Emit(p *Plan) *program.Body {
	b := program.NewBuilder()
	args := make([]program.Reg, p.Proto.Arity()+1)
	for i := range args {
		args[i] = b.Arg(i)
	}
	this := args[0]
	forwarded := args[:p.Forward+1]

	var disc program.Reg
	if p.Discriminator.FromParam {
		disc = args[p.Discriminator.Param]
	} else {
		disc = b.Get(this, p.Discriminator.Field)
	}
	if p.StoreInto != nil {
		b.Put(this, *p.StoreInto, disc)
	}

	if p.IsDirect() {
		emitCall(b, p.Proto.Return, p.Fallback, forwarded)
		return b.Body()
	}
	labels := make([]program.Label, len(p.Cases))
	cases := make([]program.SwitchCase, len(p.Cases))
	for i, c := range p.Cases {
		labels[i] = b.NewLabel()
		cases[i] = program.SwitchCase{Key: c.Key, Target: labels[i]}
	}
	fallback := b.NewLabel()
	b.Switch(disc, cases, fallback)
	for i, c := range p.Cases {
		b.Label(labels[i])
		emitCall(b, p.Proto.Return, c.Target, forwarded)
	}
	b.Label(fallback)
	emitCall(b, p.Proto.Return, p.Fallback, forwarded)
	return b.Body()
}

func emitCall(b *program.Builder, ret program.Type, t Target, args []program.Reg) {
	result := b.Invoke(t.Invoke, t.Method, args...)
	if ret == program.Void {
		b.ReturnVoid()
	} else {
		b.Return(result)
	}
}

// Forward builds a body that passes all of its arguments to t and returns the result.
func Forward(proto program.Proto, t Target) *program.Body {
	b := program.NewBuilder()
	args := make([]program.Reg, proto.Arity()+1)
	for i := range args {
		args[i] = b.Arg(i)
	}
	emitCall(b, proto.Return, t, args)
	return b.Body()
}
