// Package group holds merge groups: ordered sets of classes that the horizontal
// class merger folds into one target class.
//
// A MergeGroup is mutable while policies narrow it down, and frozen once its
// target, class ids and instance field mapping are fixed. Frozen groups are
// read concurrently by the per-group mergers and must not change afterwards.
package group

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/program"
)

type MergeGroup struct {
	classes []*program.Class

	frozen     bool
	ids        map[program.Type]int
	fields     *FieldMapping
	classID    program.FieldRef
	hasClassID bool
}

func New(classes ...*program.Class) *MergeGroup {
	return &MergeGroup{classes: slices.Clone(classes)}
}

func (g *MergeGroup) Add(c *program.Class) {
	g.assertNotFrozen()
	g.classes = append(g.classes, c)
}

// Classes returns the members in group order. Once frozen the target comes first.
func (g *MergeGroup) Classes() []*program.Class { return g.classes }

func (g *MergeGroup) Size() int { return len(g.classes) }

// IsTrivial is true for groups that cannot merge anything.
func (g *MergeGroup) IsTrivial() bool { return len(g.classes) < 2 }

func (g *MergeGroup) IsEmpty() bool { return len(g.classes) == 0 }

func (g *MergeGroup) IsInterfaceGroup() bool {
	return len(g.classes) > 0 && g.classes[0].IsInterface()
}

func (g *MergeGroup) Contains(t program.Type) bool {
	return slices.ContainsFunc(g.classes, func(c *program.Class) bool { return c.Type == t })
}

// Types returns the member types in group order.
func (g *MergeGroup) Types() []program.Type {
	ret := make([]program.Type, len(g.classes))
	for i, c := range g.classes {
		ret[i] = c.Type
	}
	return ret
}

// Filter returns a new group with the members that satisfy keep, in the same order.
func (g *MergeGroup) Filter(keep func(*program.Class) bool) *MergeGroup {
	g.assertNotFrozen()
	var kept []*program.Class
	for _, c := range g.classes {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	return &MergeGroup{classes: kept}
}

func (g *MergeGroup) String() string {
	names := make([]string, len(g.classes))
	for i, c := range g.classes {
		names[i] = c.Type.SimpleName()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func (g *MergeGroup) assertNotFrozen() {
	mergeerr.Assert(!g.frozen, mergeerr.InvariantViolation, g.String(), "group is frozen")
}

func (g *MergeGroup) assertFrozen() {
	mergeerr.Assert(g.frozen, mergeerr.InvariantViolation, g.String(), "group is not frozen yet")
}

// CheckConsistent asserts the invariants every policy must preserve.
func (g *MergeGroup) CheckConsistent() {
	mergeerr.Assert(!g.IsEmpty(), mergeerr.EmptyGroup, g.String(), "group has no classes")
	mergeerr.Assert(!g.IsTrivial(), mergeerr.TrivialGroup, g.String(), "group has a single class")
	isInterface := g.classes[0].IsInterface()
	for _, c := range g.classes[1:] {
		mergeerr.Assert(c.IsInterface() == isInterface, mergeerr.MixedGroup, g.String(),
			"%v and %v are not both classes or both interfaces", g.classes[0].Type, c.Type)
	}
}

// Freeze selects the target, numbers the classes and maps instance fields.
// names is used to pick names for target fields that have to be added.
func (g *MergeGroup) Freeze(keep program.KeepInfo, names *program.Names) {
	g.assertNotFrozen()
	g.CheckConsistent()
	super := g.classes[0].Super
	for _, c := range g.classes[1:] {
		mergeerr.Assert(c.Super == super, mergeerr.InvariantViolation, g.String(),
			"%v extends %v but %v extends %v", g.classes[0].Type, super, c.Type, c.Super)
	}

	target := SelectTarget(g.classes, keep)
	ordered := make([]*program.Class, 0, len(g.classes))
	ordered = append(ordered, target)
	for _, c := range g.classes {
		if c != target {
			ordered = append(ordered, c)
		}
	}
	g.classes = ordered
	g.ids = make(map[program.Type]int, len(ordered))
	for i, c := range ordered {
		g.ids[c.Type] = i
	}
	g.fields = mapInstanceFields(g, names)
	g.frozen = true
}

func (g *MergeGroup) IsFrozen() bool { return g.frozen }

func (g *MergeGroup) Target() *program.Class {
	g.assertFrozen()
	return g.classes[0]
}

func (g *MergeGroup) Sources() []*program.Class {
	g.assertFrozen()
	return g.classes[1:]
}

// ClassID is the discriminator of a member: 0 for the target, 1..N-1 for the sources.
func (g *MergeGroup) ClassID(t program.Type) int {
	g.assertFrozen()
	id, ok := g.ids[t]
	mergeerr.Assert(ok, mergeerr.InvariantViolation, g.String(), "%v is not a member", t)
	return id
}

func (g *MergeGroup) Fields() *FieldMapping {
	g.assertFrozen()
	return g.fields
}

// SetClassIDField records the discriminator field added to the target.
func (g *MergeGroup) SetClassIDField(f program.FieldRef) {
	g.classID = f
	g.hasClassID = true
}

func (g *MergeGroup) ClassIDField() (program.FieldRef, bool) {
	return g.classID, g.hasClassID
}

// SelectTarget picks the class that survives a merge: classes that may be renamed are
// preferred, then the shortest name, then the lexically smallest, then the earliest.
func SelectTarget(classes []*program.Class, keep program.KeepInfo) *program.Class {
	mergeerr.Assert(len(classes) > 0, mergeerr.EmptyGroup, "", "no classes to select a target from")
	best := 0
	for i := 1; i < len(classes); i++ {
		if compareTargetCandidates(classes[i], classes[best], keep) < 0 {
			best = i
		}
	}
	return classes[best]
}

func compareTargetCandidates(a, b *program.Class, keep program.KeepInfo) int {
	renameA, renameB := keep.IsRenameAllowed(a.Type), keep.IsRenameAllowed(b.Type)
	if renameA != renameB {
		if renameA {
			return -1
		}
		return 1
	}
	return cmp.Or(
		cmp.Compare(len(a.Type), len(b.Type)),
		cmp.Compare(a.Type, b.Type),
	)
}

func (g *MergeGroup) GoString() string {
	if !g.frozen {
		return fmt.Sprintf("MergeGroup%v", g)
	}
	return fmt.Sprintf("MergeGroup{target: %v, sources: %v}", g.Target().Type, g.Types()[1:])
}
