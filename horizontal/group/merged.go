package group

import (
	"slices"

	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/util"
)

// MergedClasses records which classes were folded into which targets.
// It is filled sequentially at commit time and only read afterwards.
type MergedClasses struct {
	targetOf map[program.Type]program.Type
	sources  map[program.Type][]program.Type
	targets  []program.Type
}

func NewMergedClasses() *MergedClasses {
	return &MergedClasses{
		targetOf: make(map[program.Type]program.Type),
		sources:  make(map[program.Type][]program.Type),
	}
}

// Add records a committed group.
func (m *MergedClasses) Add(g *MergeGroup) {
	target := g.Target().Type
	if _, ok := m.sources[target]; !ok {
		m.targets = append(m.targets, target)
	}
	for _, source := range g.Sources() {
		m.targetOf[source.Type] = target
		m.sources[target] = append(m.sources[target], source.Type)
	}
}

// HasBeenMerged reports whether t was merged into another class and no longer exists.
func (m *MergedClasses) HasBeenMerged(t program.Type) bool {
	_, ok := m.targetOf[t]
	return ok
}

func (m *MergedClasses) IsMergeTarget(t program.Type) bool {
	_, ok := m.sources[t]
	return ok
}

func (m *MergedClasses) TargetFor(source program.Type) (program.Type, bool) {
	t, ok := m.targetOf[source]
	return t, ok
}

// SourcesFor returns the classes merged into target, in group order.
func (m *MergedClasses) SourcesFor(target program.Type) []program.Type {
	return slices.Clone(m.sources[target])
}

// Targets returns every merge target in commit order.
func (m *MergedClasses) Targets() []program.Type {
	return slices.Clone(m.targets)
}

func (m *MergedClasses) IsEmpty() bool { return len(m.targets) == 0 }

// AllSources returns every merged-away type, sorted and without duplicates.
func (m *MergedClasses) AllSources() []program.Type {
	all := make([]program.Type, 0, len(m.targetOf))
	for _, sources := range m.sources {
		all = append(all, sources...)
	}
	return util.SortedUnique(all)
}
