package horizontal

import (
	"context"
	"slices"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/lens"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
)

// rewriteBodies passes every method body of prog through l, then asserts that no class
// still mentions a merged type.
func rewriteBodies(ctx context.Context, prog *program.Program, l *lens.Lens, merged *group.MergedClasses, opts Options) (err error) {
	defer mergeerr.Recover(&err)
	classes := slices.Collect(prog.Classes())
	rewritten := make([]*program.Class, len(classes))
	err = util.ForEach(ctx, opts.workers(), len(classes), func(_ context.Context, i int) (err error) {
		defer mergeerr.Recover(&err)
		c := classes[i].Clone()
		for _, m := range c.Methods() {
			m.Body = RewriteBody(m.Body, l)
		}
		checkNoMergedTypes(c, merged)
		rewritten[i] = c
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range rewritten {
		if err := prog.Replace(c); err != nil {
			return mergeerr.Wrap(err, mergeerr.MissingClass, c.Type.String())
		}
	}
	return nil
}

// RewriteBody returns a copy of body with every reference mapped through l. Calls that
// were redirected to a merged method get their extra arguments loaded into fresh
// registers just before the call.
func RewriteBody(body *program.Body, l *lens.Lens) *program.Body {
	if body == nil {
		return nil
	}
	ret := &program.Body{Regs: body.Regs, Labels: body.Labels, Instrs: make([]program.Instr, 0, len(body.Instrs))}
	for _, in := range body.Instrs {
		in.Args = slices.Clone(in.Args)
		in.Cases = slices.Clone(in.Cases)
		switch in.Op {
		case program.OpCheckCast, program.OpInstanceOf, program.OpNew:
			in.Type = l.LookupType(in.Type)
		case program.OpConst:
			if in.Const.Kind == program.ConstClass {
				in.Const.Class = l.LookupType(in.Const.Class)
			}
		case program.OpGet, program.OpPut, program.OpStaticGet, program.OpStaticPut:
			in.Field = l.LookupField(in.Field)
		case program.OpInvoke:
			lookup := l.LookupMethod(in.Method)
			in.Method = lookup.Ref
			for _, extra := range lookup.Extra {
				r := ret.NewReg()
				ret.Instrs = append(ret.Instrs, program.Instr{Op: program.OpConst, Dest: r, Const: extra.Value})
				in.Args = append(in.Args, r)
			}
		}
		ret.Instrs = append(ret.Instrs, in)
	}
	return ret
}

// checkNoMergedTypes fails if the declaration or a body of c still mentions a type that
// was merged away.
func checkNoMergedTypes(c *program.Class, merged *group.MergedClasses) {
	check := func(t program.Type, where any) {
		t = t.Base()
		mergeerr.Assert(!merged.HasBeenMerged(t), mergeerr.UnresolvedType, c.Type.String(),
			"%v still references merged class %v", where, t)
	}
	c.ReferencedTypes(func(t program.Type) { check(t, c.Type) })
	for _, m := range c.Methods() {
		if m.Body == nil {
			continue
		}
		for _, in := range m.Body.Instrs {
			switch in.Op {
			case program.OpCheckCast, program.OpInstanceOf, program.OpNew:
				check(in.Type, m.Ref)
			case program.OpConst:
				if in.Const.Kind == program.ConstClass {
					check(in.Const.Class, m.Ref)
				}
			case program.OpGet, program.OpPut, program.OpStaticGet, program.OpStaticPut:
				check(in.Field.Holder, m.Ref)
				check(in.Field.Type, m.Ref)
			case program.OpInvoke:
				check(in.Method.Holder, m.Ref)
				in.Method.Proto.Mentions(func(t program.Type) bool {
					check(t, m.Ref)
					return false
				})
			}
		}
	}
}
