package horizontal

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"

	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/lens"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
	"github.com/hashicorp/go-set/v3"
)

// treeFixer rewrites the declarations of every class after merging, so that super types,
// interfaces, field types and prototypes name merge targets instead of deleted classes.
//
// Fixing can make two members of one class identical. Fields and direct methods are
// renamed within their class, and constructors get null padding parameters. Virtual
// methods are renamed program-wide, so that overrides stay aligned and a fixed method
// does not start overriding one it did not override before.
type treeFixer struct {
	prog  *program.Program
	lens  *lens.Lens
	names *program.Names
	log   *slog.Logger

	// renamed holds the virtual signatures that collided, keyed by their pre-fix signature
	renamed map[program.Signature]program.Signature
}

// fixTree fixes prog in place and returns the renames it performed. l must contain the
// merge layer; only its type mappings are used to fix declarations.
func fixTree(ctx context.Context, prog *program.Program, l *lens.Lens, names *program.Names, opts Options) (ret *lens.Builder, err error) {
	defer mergeerr.Recover(&err)
	f := &treeFixer{
		prog:    prog,
		lens:    l,
		names:   names,
		log:     logger.With("phase", "treefixer"),
		renamed: make(map[program.Signature]program.Signature),
	}
	ret = lens.NewBuilder()
	ret.RewriteSignatures()
	// unmapped prototypes are rewritten with the layer's own type map
	l.MappedTypes(ret.MapType)
	f.renameVirtualCollisions(ret)

	var todo []*program.Class
	for c := range prog.Classes() {
		if f.needsFix(c) {
			todo = append(todo, c)
		}
	}
	fixed := make([]*program.Class, len(todo))
	renames := make([]*lens.Builder, len(todo))
	err = util.ForEach(ctx, opts.workers(), len(todo), func(_ context.Context, i int) (err error) {
		defer mergeerr.Recover(&err)
		fixed[i], renames[i] = f.fixClass(todo[i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, c := range fixed {
		if err := prog.Replace(c); err != nil {
			return nil, mergeerr.Wrap(err, mergeerr.MissingClass, c.Type.String())
		}
		ret.Merge(renames[i])
	}
	f.log.Debug("fixed class declarations", "classes", len(todo), "renamedVirtuals", len(f.renamed))
	return ret, nil
}

func (f *treeFixer) fixType(t program.Type) program.Type {
	return f.lens.LookupType(t)
}

func (f *treeFixer) fixSignature(sig program.Signature) program.Signature {
	return program.Signature{Name: sig.Name, Proto: sig.Proto.Map(f.fixType)}
}

func (f *treeFixer) needsFix(c *program.Class) bool {
	needs := false
	c.ReferencedTypes(func(t program.Type) {
		needs = needs || f.lens.HasTypeMapping(t)
	})
	return needs
}

// visibleVirtuals returns the pre-fix signatures of the virtual methods c declares or
// inherits from classes and interfaces of the program, without duplicates.
func (f *treeFixer) visibleVirtuals(c *program.Class) []program.Signature {
	var ret []program.Signature
	seenSigs := set.New[program.Signature](len(c.VirtualMethods))
	seenTypes := set.New[program.Type](4)
	work := []program.Type{c.Type}
	for len(work) > 0 {
		t := work[0]
		work = work[1:]
		if !seenTypes.Insert(t) {
			continue
		}
		k, ok := f.prog.Class(t)
		if !ok {
			continue
		}
		for _, m := range k.VirtualMethods {
			if sig := m.Ref.Signature(); seenSigs.Insert(sig) {
				ret = append(ret, sig)
			}
		}
		if k.Super != "" {
			work = append(work, k.Super)
		}
		work = append(work, k.Interfaces...)
	}
	return ret
}

// renameVirtualCollisions finds virtual signatures that become equal once fixed while
// visible from one class, and gives all but one of them a fresh program-wide name.
// The one kept is the signature fixing leaves unchanged if any, else the smallest.
func (f *treeFixer) renameVirtualCollisions(b *lens.Builder) {
	var collisions [][]program.Signature
	for c := range f.prog.Classes() {
		var order []program.Signature
		byFixed := make(map[program.Signature][]program.Signature)
		for _, sig := range f.visibleVirtuals(c) {
			fixed := f.fixSignature(sig)
			if _, ok := byFixed[fixed]; !ok {
				order = append(order, fixed)
			}
			byFixed[fixed] = append(byFixed[fixed], sig)
		}
		for _, fixed := range order {
			if sigs := byFixed[fixed]; len(sigs) > 1 {
				collisions = append(collisions, sigs)
			}
		}
	}
	if len(collisions) == 0 {
		return
	}

	taken := set.New[string](f.prog.Len())
	for c := range f.prog.Classes() {
		for _, m := range c.Methods() {
			taken.Insert(m.Ref.Name)
		}
	}
	for _, sigs := range collisions {
		survivors := slices.DeleteFunc(slices.Clone(sigs), func(s program.Signature) bool {
			_, ok := f.renamed[s]
			return ok
		})
		if len(survivors) < 2 {
			continue
		}
		keeper := slices.MinFunc(survivors, func(a, b program.Signature) int {
			return cmp.Or(
				compareBool(f.fixSignature(a) != a, f.fixSignature(b) != b),
				cmp.Compare(a.String(), b.String()),
			)
		})
		for _, s := range survivors {
			if s == keeper {
				continue
			}
			to := f.fixSignature(s)
			to.Name = freshGlobalName(s.Name, taken)
			f.renamed[s] = to
			b.RenameSignature(s, to)
			f.log.Debug("renamed colliding virtual method", "from", s, "to", to, "kept", keeper)
		}
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func freshGlobalName(prefix string, taken *set.Set[string]) string {
	for i := 1; ; i++ {
		candidate := prefix + "$" + strconv.Itoa(i)
		if taken.Insert(candidate) {
			return candidate
		}
	}
}

// fixClass returns the fixed declaration of c and the member renames it needed.
func (f *treeFixer) fixClass(c *program.Class) (*program.Class, *lens.Builder) {
	b := lens.NewBuilder()
	fixed := &program.Class{
		Type:  c.Type,
		Flags: c.Flags,
	}
	if c.Super != "" {
		fixed.Super = f.fixType(c.Super)
	}
	for _, i := range c.Interfaces {
		i = f.fixType(i)
		if i != c.Type && !slices.Contains(fixed.Interfaces, i) {
			fixed.Interfaces = append(fixed.Interfaces, i)
		}
	}
	fixed.StaticFields, fixed.InstanceFields = f.fixFields(c, b)
	fixed.DirectMethods, fixed.VirtualMethods = f.fixMethods(c, b)
	return fixed, b
}

// fixFields fixes field types. Fields whose type does not change keep their name; the
// others are renamed if their fixed reference is taken.
func (f *treeFixer) fixFields(c *program.Class, b *lens.Builder) (static, instance []*program.Field) {
	all := c.Fields()
	taken := set.New[program.FieldRef](len(all))
	for _, field := range all {
		if f.fixType(field.Ref.Type) == field.Ref.Type {
			taken.Insert(field.Ref)
		}
	}
	for _, field := range all {
		moved := field.Clone()
		if typ := f.fixType(field.Ref.Type); typ != field.Ref.Type {
			moved.Ref.Type = typ
			if !taken.Insert(moved.Ref) {
				moved.Ref.Name = f.names.FreshFieldName(c.Type, field.Ref.Name)
				taken.Insert(moved.Ref)
				f.log.Debug("renamed colliding field", "from", field.Ref, "to", moved.Ref)
			}
			b.MapField(field.Ref, moved.Ref)
		}
		if moved.Flags.IsStatic() {
			static = append(static, moved)
		} else {
			instance = append(instance, moved)
		}
	}
	return static, instance
}

// fixMethods fixes prototypes. Virtual methods take the names decided program-wide.
// Direct methods whose prototype does not change keep their signature unless a virtual
// method took it; constructors that collide are padded, other direct methods renamed.
func (f *treeFixer) fixMethods(c *program.Class, b *lens.Builder) (direct, virtual []*program.Method) {
	taken := set.New[program.Signature](len(c.DirectMethods) + len(c.VirtualMethods))
	for _, m := range c.VirtualMethods {
		sig := m.Ref.Signature()
		to, ok := f.renamed[sig]
		if !ok {
			to = f.fixSignature(sig)
		} else {
			f.names.ReserveMethod(c.Type, to.Name, to.Proto)
		}
		mergeerr.Assert(taken.Insert(to), mergeerr.MemberCollision, c.Type.String(),
			"virtual methods collide on %v after fixing", to)
		virtual = append(virtual, f.moveMethod(m, to.On(c.Type), b))
	}

	fixedRefs := make([]program.MethodRef, len(c.DirectMethods))
	unchangedFirst := slices.Clone(c.DirectMethods)
	slices.SortStableFunc(unchangedFirst, func(x, y *program.Method) int {
		return compareBool(f.fixSignature(x.Ref.Signature()) != x.Ref.Signature(),
			f.fixSignature(y.Ref.Signature()) != y.Ref.Signature())
	})
	index := make(map[*program.Method]int, len(c.DirectMethods))
	for i, m := range c.DirectMethods {
		index[m] = i
	}
	for _, m := range unchangedFirst {
		fixedRefs[index[m]] = f.fixDirectSignature(c, m, taken, b)
	}
	for i, m := range c.DirectMethods {
		ref := fixedRefs[i]
		if ref == m.Ref {
			direct = append(direct, m.Clone())
			continue
		}
		moved := relocated(m, ref)
		direct = append(direct, moved)
	}
	return direct, virtual
}

// fixDirectSignature picks the fixed reference of a direct method and records it in b.
func (f *treeFixer) fixDirectSignature(c *program.Class, m *program.Method, taken *set.Set[program.Signature], b *lens.Builder) program.MethodRef {
	sig := f.fixSignature(m.Ref.Signature())
	if taken.Insert(sig) {
		to := sig.On(c.Type)
		b.MoveMethod(m.Ref, to)
		return to
	}
	if m.IsConstructor() {
		var padding []lens.ExtraParam
		for taken.Contains(sig) {
			padding = append(padding, lens.UnusedParam(program.Object))
			sig.Proto = sig.Proto.Append(program.Object)
		}
		taken.Insert(sig)
		f.names.ReserveMethod(c.Type, sig.Name, sig.Proto)
		to := sig.On(c.Type)
		b.MapMethod(m.Ref, to, padding...)
		b.SetRepresentative(to, m.Ref)
		f.log.Debug("padded colliding constructor", "from", m.Ref, "to", to)
		return to
	}
	sig.Name = f.names.FreshMethodName(c.Type, sig.Name, sig.Proto)
	taken.Insert(sig)
	to := sig.On(c.Type)
	b.MoveMethod(m.Ref, to)
	f.log.Debug("renamed colliding method", "from", m.Ref, "to", to)
	return to
}

func (f *treeFixer) moveMethod(m *program.Method, to program.MethodRef, b *lens.Builder) *program.Method {
	if to == m.Ref {
		return m.Clone()
	}
	b.MoveMethod(m.Ref, to)
	return relocated(m, to)
}
