package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cottand/hmerge/horizontal/group"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/internal/log"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
	"github.com/hashicorp/go-set/v3"
)

var logger = log.DefaultLogger.With("section", "policy")

// Env is what policies may use besides the groups themselves.
type Env struct {
	Ctx     context.Context
	Program *program.Program
	// Workers bounds the goroutines used for predicates and pre-processing
	Workers int
}

// Stats counts what one policy did, for debugging.
type Stats struct {
	Policy         string
	ClassesIn      int
	ClassesOut     int
	GroupsIn       int
	GroupsOut      int
	TrivialDropped int
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("classesIn", s.ClassesIn),
		slog.Int("classesOut", s.ClassesOut),
		slog.Int("groupsIn", s.GroupsIn),
		slog.Int("groupsOut", s.GroupsOut),
		slog.Int("trivialDropped", s.TrivialDropped),
	)
}

// Executor runs a fixed, ordered list of policies over merge groups.
type Executor struct {
	policies []Policy
	stats    []Stats
}

// NewExecutor orders single-class policies before all others, keeping the
// relative order within each kind.
func NewExecutor(policies ...Policy) *Executor {
	var singles, multis []Policy
	for _, p := range policies {
		switch p.(type) {
		case SingleClassPolicy:
			singles = append(singles, p)
		case MultiClassPolicyWithPreprocessing, MultiClassPolicy:
			multis = append(multis, p)
		default:
			panic(fmt.Sprintf("unknown policy kind %T", p))
		}
	}
	return &Executor{policies: append(singles, multis...)}
}

// Stats returns the counters of the last Run, one entry per policy in execution order.
func (e *Executor) Stats() []Stats { return e.stats }

// Run applies every policy to groups in order and returns the surviving non-trivial groups.
// Fatal inconsistencies raised by policies panic with a *mergeerr.Failure.
func (e *Executor) Run(env Env, groups []*group.MergeGroup) ([]*group.MergeGroup, error) {
	groups = dropTrivial(groups)
	e.stats = e.stats[:0]
	for _, p := range e.policies {
		if err := env.Ctx.Err(); err != nil {
			return nil, err
		}
		in := Stats{Policy: p.Name(), GroupsIn: len(groups), ClassesIn: countClasses(groups)}
		var (
			next []*group.MergeGroup
			err  error
		)
		switch p := p.(type) {
		case SingleClassPolicy:
			next, err = applySingle(env, p, groups)
		case MultiClassPolicyWithPreprocessing:
			if err = p.Preprocess(env, groups); err == nil {
				next = applyMulti(p, groups)
			}
		case MultiClassPolicy:
			next = applyMulti(p, groups)
		}
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.Name(), err)
		}
		surviving := dropTrivial(next)
		in.TrivialDropped = len(next) - len(surviving)
		in.GroupsOut = len(surviving)
		in.ClassesOut = countClasses(surviving)
		e.stats = append(e.stats, in)
		logger.Debug("applied policy", "policy", p.Name(), "stats", in)
		groups = surviving
	}
	for _, g := range groups {
		g.CheckConsistent()
	}
	return groups, nil
}

// applySingle evaluates p for every class of every group concurrently, then filters
// each group in order.
func applySingle(env Env, p SingleClassPolicy, groups []*group.MergeGroup) ([]*group.MergeGroup, error) {
	var all []*program.Class
	for _, g := range groups {
		all = append(all, g.Classes()...)
	}
	keep := make([]bool, len(all))
	err := util.ForEach(env.Ctx, env.Workers, len(all), func(_ context.Context, i int) error {
		keep[i] = p.CanMerge(all[i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	kept := make(map[program.Type]bool, len(all))
	for i, c := range all {
		kept[c.Type] = keep[i]
	}
	ret := make([]*group.MergeGroup, 0, len(groups))
	for _, g := range groups {
		ret = append(ret, g.Filter(func(c *program.Class) bool { return kept[c.Type] }))
	}
	return ret, nil
}

func applyMulti(p MultiClassPolicy, groups []*group.MergeGroup) []*group.MergeGroup {
	var ret []*group.MergeGroup
	for _, g := range groups {
		parts := p.Apply(g)
		checkNarrowed(p, g, parts)
		ret = append(ret, parts...)
	}
	return ret
}

// checkNarrowed asserts that parts only use classes of g, each at most once.
func checkNarrowed(p Policy, g *group.MergeGroup, parts []*group.MergeGroup) {
	seen := set.New[program.Type](g.Size())
	for _, part := range parts {
		mergeerr.Assert(!part.IsEmpty(), mergeerr.EmptyGroup, g.String(),
			"policy %s returned an empty group", p.Name())
		for _, c := range part.Classes() {
			mergeerr.Assert(g.Contains(c.Type), mergeerr.InvariantViolation, g.String(),
				"policy %s added %v to the group", p.Name(), c.Type)
			mergeerr.Assert(seen.Insert(c.Type), mergeerr.InvariantViolation, g.String(),
				"policy %s put %v in more than one group", p.Name(), c.Type)
		}
	}
}

func dropTrivial(groups []*group.MergeGroup) []*group.MergeGroup {
	ret := make([]*group.MergeGroup, 0, len(groups))
	for _, g := range groups {
		if !g.IsTrivial() {
			ret = append(ret, g)
		}
	}
	return ret
}

func countClasses(groups []*group.MergeGroup) int {
	n := 0
	for _, g := range groups {
		n += g.Size()
	}
	return n
}
