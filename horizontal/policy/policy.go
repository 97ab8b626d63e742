// Package policy decides which classes may be merged together.
//
// A Policy is one of three kinds, and the set of kinds is closed:
//   - a SingleClassPolicy is a predicate over one class; classes it rejects leave their group
//   - a MultiClassPolicy partitions one group into zero or more smaller groups
//   - a MultiClassPolicyWithPreprocessing first computes whole-program state once, then
//     partitions like a MultiClassPolicy
//
// Policies are applied in order by an Executor. They never grow a group.
package policy

import (
	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/program"
)

// Policy is implemented only by the three kinds declared in this package.
type Policy interface {
	Name() string
	sealed()
}

type named struct{ name string }

func (n named) Name() string { return n.name }
func (named) sealed()        {}

// SingleClassPolicy keeps a class in its group only when CanMerge holds.
// CanMerge may be called concurrently for different classes.
type SingleClassPolicy interface {
	Policy
	CanMerge(c *program.Class) bool
}

// MultiClassPolicy splits a group. Every returned group must be a subset of g;
// groups with fewer than two classes are dropped by the Executor.
type MultiClassPolicy interface {
	Policy
	Apply(g *group.MergeGroup) []*group.MergeGroup
}

// MultiClassPolicyWithPreprocessing is a MultiClassPolicy that needs state computed
// from all groups first. Preprocess is called once, before any Apply.
type MultiClassPolicyWithPreprocessing interface {
	MultiClassPolicy
	Preprocess(env Env, groups []*group.MergeGroup) error
}

// singleClass adapts a predicate into a SingleClassPolicy.
type singleClass struct {
	named
	pred func(c *program.Class) bool
}

func (s singleClass) CanMerge(c *program.Class) bool { return s.pred(c) }

func NewSingleClass(name string, pred func(c *program.Class) bool) SingleClassPolicy {
	return singleClass{named: named{name}, pred: pred}
}

// partition splits groups by an equivalence key, keeping the order in which keys
// were first seen and the relative order of classes within each key.
type partition[K comparable] struct {
	named
	key func(c *program.Class) K
}

func (p partition[K]) Apply(g *group.MergeGroup) []*group.MergeGroup {
	return PartitionBy(g, p.key)
}

func NewPartition[K comparable](name string, key func(c *program.Class) K) MultiClassPolicy {
	return partition[K]{named: named{name}, key: key}
}

// PartitionBy groups the classes of g by key, preserving first-seen key order.
func PartitionBy[K comparable](g *group.MergeGroup, key func(c *program.Class) K) []*group.MergeGroup {
	var order []K
	buckets := make(map[K]*group.MergeGroup)
	for _, c := range g.Classes() {
		k := key(c)
		b, ok := buckets[k]
		if !ok {
			b = group.New()
			buckets[k] = b
			order = append(order, k)
		}
		b.Add(c)
	}
	ret := make([]*group.MergeGroup, len(order))
	for i, k := range order {
		ret[i] = buckets[k]
	}
	return ret
}

// Default returns the standard policies in the order they run.
// maxGroupSize <= 0 leaves group sizes unbounded.
func Default(prog *program.Program, keep program.KeepInfo, maxGroupSize int) []Policy {
	policies := []Policy{
		NoPinnedClasses(keep),
		NoKeptMembers(keep),
		NoNativeMethods(),
		NoEnums(),
		NoAnnotations(),
		NoClassInitializerWithObservableSideEffects(),
		NoDirectRuntimeTypeChecks(),
		SameParentClass(),
		SamePackage(),
		NoIndirectRuntimeTypeChecks(),
		NoDefaultInterfaceMethodMerging(prog),
		NoDirectlyConnectedInterfaces(prog),
		NoDefaultInterfaceMethodCollisions(),
	}
	if maxGroupSize > 0 {
		policies = append(policies, LimitGroupSize(maxGroupSize))
	}
	return policies
}
