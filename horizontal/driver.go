// Package horizontal merges classes that are not related by inheritance but are similar
// enough to share one class definition.
//
// Run splits the program into a group of classes and a group of interfaces, narrows them
// with policies, and folds every surviving group into its target class. Behaviour that
// differed between the merged classes is preserved by dispatching on a class id field or
// an extra constructor argument. The result carries a lens that later passes use to
// rewrite references to deleted classes and moved members.
package horizontal

import (
	"context"
	"fmt"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/horizontal/policy"
	"github.com/cottand/hmerge/internal/log"
	"github.com/cottand/hmerge/lens"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
)

var logger = log.DefaultLogger.With("section", "driver")

const (
	mergeLayerName = "horizontal"
	fixLayerName   = "horizontal-fix"
)

type Result struct {
	// Program is the merged program. The input program is left untouched.
	Program *program.Program
	Lens    *lens.Lens
	Merged  *group.MergedClasses
	// Deleted are the merged-away types, sorted
	Deleted []program.Type
	// Groups are the frozen groups that were merged, in commit order
	Groups []*group.MergeGroup
}

func identityResult(prog *program.Program) *Result {
	return &Result{
		Program: prog,
		Lens:    lens.Identity(),
		Merged:  group.NewMergedClasses(),
	}
}

// SelectGroups runs the policies over prog and freezes the surviving groups, without
// changing prog. It returns the per-policy statistics alongside.
func SelectGroups(ctx context.Context, prog *program.Program, keep program.KeepInfo, opts Options) (
	groups []*group.MergeGroup, stats []policy.Stats, err error,
) {
	defer mergeerr.Recover(&err)
	groups, stats, err = selectGroups(ctx, prog, keep, opts)
	if err != nil {
		return nil, nil, err
	}
	names := program.NewNames(prog)
	for _, g := range groups {
		g.Freeze(keep, names)
	}
	return groups, stats, nil
}

func selectGroups(ctx context.Context, prog *program.Program, keep program.KeepInfo, opts Options) ([]*group.MergeGroup, []policy.Stats, error) {
	classes, interfaces := group.New(), group.New()
	for c := range prog.Classes() {
		if c.IsInterface() {
			interfaces.Add(c)
		} else {
			classes.Add(c)
		}
	}
	executor := policy.NewExecutor(policy.Default(prog, keep, opts.MaxGroupSize)...)
	env := policy.Env{Ctx: ctx, Program: prog, Workers: opts.workers()}
	groups, err := executor.Run(env, []*group.MergeGroup{classes, interfaces})
	if err != nil {
		return nil, nil, fmt.Errorf("running merge policies: %w", err)
	}
	return groups, executor.Stats(), nil
}

// Run merges the classes of prog. prog itself is not modified: the merged program is
// built on a snapshot and returned in the Result.
//
// Errors are either a cancelled ctx or a *mergeerr.Failure, which indicates a bug in
// an earlier pass or in this one; the caller must not use the partially merged state.
func Run(ctx context.Context, prog *program.Program, keep program.KeepInfo, opts Options) (res *Result, err error) {
	defer mergeerr.Recover(&err)
	if !opts.Enabled {
		logger.Debug("horizontal class merging disabled")
		return identityResult(prog), nil
	}

	groups, _, err := selectGroups(ctx, prog, keep, opts)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		logger.Info("no classes to merge")
		return identityResult(prog), nil
	}
	names := program.NewNames(prog)
	for _, g := range groups {
		g.Freeze(keep, names)
	}

	mergers := make([]*classMerger, len(groups))
	err = util.ForEach(ctx, opts.workers(), len(groups), func(ctx context.Context, i int) (err error) {
		defer mergeerr.Recover(&err)
		m := newClassMerger(groups[i], prog, names, opts)
		m.plan()
		mergers[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	work := prog.Snapshot()
	merged := group.NewMergedClasses()
	mergeLayer := lens.NewBuilder()
	for _, m := range mergers {
		if err := m.commit(work, merged); err != nil {
			return nil, err
		}
		mergeLayer.Merge(m.lens)
	}
	l := lens.Identity().Push(mergeLayer.Build(mergeLayerName))
	logger.Debug("committed merge groups", "groups", len(groups), "classes", work.Len())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fixLayer, err := fixTree(ctx, work, l, names, opts)
	if err != nil {
		return nil, err
	}
	l = l.Push(fixLayer.Build(fixLayerName))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rewriteBodies(ctx, work, l, merged, opts); err != nil {
		return nil, err
	}
	checkLensTargets(work, l)

	deleted := merged.AllSources()
	logger.Info("merged classes", "groups", len(groups), "deleted", len(deleted))
	return &Result{
		Program: work,
		Lens:    l,
		Merged:  merged,
		Deleted: deleted,
		Groups:  groups,
	}, nil
}

// checkLensTargets asserts that every type the lens maps to still exists.
func checkLensTargets(prog *program.Program, l *lens.Lens) {
	l.MappedTypes(func(from, to program.Type) {
		mergeerr.Assert(prog.Has(to), mergeerr.UnresolvedType, from.String(),
			"%v was merged into %v, which is not in the program", from, to)
	})
}
