package policy

import (
	"github.com/cottand/hmerge/program"
)

// NoPinnedClasses evicts classes whose name must be preserved.
func NoPinnedClasses(keep program.KeepInfo) SingleClassPolicy {
	return NewSingleClass("NoPinnedClasses", func(c *program.Class) bool {
		return keep.IsRenameAllowed(c.Type)
	})
}

// NoKeptMembers evicts classes declaring a member that must not be removed or moved.
func NoKeptMembers(keep program.KeepInfo) SingleClassPolicy {
	return NewSingleClass("NoKeptMembers", func(c *program.Class) bool {
		for _, m := range c.Methods() {
			if !keep.IsShrinkAllowed(m.Ref) {
				return false
			}
		}
		for _, f := range c.Fields() {
			if !keep.IsShrinkAllowed(f.Ref) {
				return false
			}
		}
		return true
	})
}

func NoNativeMethods() SingleClassPolicy {
	return NewSingleClass("NoNativeMethods", func(c *program.Class) bool {
		for _, m := range c.Methods() {
			if m.Flags.IsNative() {
				return false
			}
		}
		return true
	})
}

func NoEnums() SingleClassPolicy {
	return NewSingleClass("NoEnums", func(c *program.Class) bool {
		return !c.Flags.Has(program.AccEnum)
	})
}

func NoAnnotations() SingleClassPolicy {
	return NewSingleClass("NoAnnotations", func(c *program.Class) bool {
		return !c.Flags.Has(program.AccAnnotation)
	})
}

// NoClassInitializerWithObservableSideEffects evicts classes whose static initializer
// does more than store constants into the class's own static fields. Merging moves
// every static initializer behind the target's, which changes when they run.
func NoClassInitializerWithObservableSideEffects() SingleClassPolicy {
	return NewSingleClass("NoClassInitializerWithObservableSideEffects", func(c *program.Class) bool {
		clinit := c.ClassInitializer()
		if clinit == nil || clinit.Body == nil {
			return true
		}
		for _, in := range clinit.Body.Instrs {
			switch in.Op {
			case program.OpConst, program.OpAssume, program.OpLabel:
			case program.OpStaticPut, program.OpStaticGet:
				if in.Field.Holder != c.Type {
					return false
				}
			case program.OpReturn:
				if len(in.Args) > 0 {
					return false
				}
			default:
				return false
			}
		}
		return true
	})
}
