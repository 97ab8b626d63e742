package group

import (
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/program"
)

type slotKey struct {
	typ        program.Type
	visibility program.Visibility
}

func keyOf(f *program.Field) slotKey {
	return slotKey{typ: f.Ref.Type, visibility: f.Flags.Visibility()}
}

// Slot is an instance field of the merged target.
type Slot struct {
	Field *program.Field
	// Added is true for slots that the target did not declare before merging
	Added bool
}

// FieldMapping assigns every instance field of a group to a slot of the target.
type FieldMapping struct {
	slots   []*Slot
	mapping map[program.FieldRef]*Slot
	// sourceFields lists mapped source fields in group and declaration order
	sourceFields []program.FieldRef
}

// Slots returns the target instance fields after merging, in declaration order.
func (m *FieldMapping) Slots() []*Slot { return m.slots }

// Lookup returns the target field a member's instance field was mapped to.
func (m *FieldMapping) Lookup(f program.FieldRef) (program.FieldRef, bool) {
	slot, ok := m.mapping[f]
	if !ok {
		return program.FieldRef{}, false
	}
	return slot.Field.Ref, true
}

// Mapped calls f for every source field that moved to a differently named target field.
func (m *FieldMapping) Mapped(f func(from, to program.FieldRef)) {
	for _, from := range m.sourceFields {
		if to := m.mapping[from].Field.Ref; to != from {
			f(from, to)
		}
	}
}

// mapInstanceFields walks every source in group order and greedily assigns each of its
// instance fields, in declaration order, to the first target slot of the same type and
// visibility that this source has not used yet. When none is left a slot is added.
// The target itself must already be first in g.classes.
func mapInstanceFields(g *MergeGroup, names *program.Names) *FieldMapping {
	target := g.classes[0]
	m := &FieldMapping{mapping: make(map[program.FieldRef]*Slot)}
	byKey := make(map[slotKey][]*Slot)

	for _, f := range target.InstanceFields {
		slot := &Slot{Field: f.Clone()}
		m.slots = append(m.slots, slot)
		m.mapping[f.Ref] = slot
		byKey[keyOf(f)] = append(byKey[keyOf(f)], slot)
	}

	for _, source := range g.classes[1:] {
		used := make(map[*Slot]bool, len(source.InstanceFields))
		for _, f := range source.InstanceFields {
			mergeerr.Assert(!f.Flags.IsStatic(), mergeerr.IncompatibleFieldMapping, g.String(),
				"static field %v listed as instance field", f.Ref)
			key := keyOf(f)
			var slot *Slot
			for _, candidate := range byKey[key] {
				if !used[candidate] {
					slot = candidate
					break
				}
			}
			if slot == nil {
				name := names.FreshFieldName(target.Type, f.Ref.Name)
				added := f.Clone()
				added.Ref = program.FieldRef{Holder: target.Type, Name: name, Type: f.Ref.Type}
				slot = &Slot{Field: added, Added: true}
				m.slots = append(m.slots, slot)
				byKey[key] = append(byKey[key], slot)
			} else {
				relaxSlot(slot, f)
			}
			mergeerr.Assert(slot.Field.Ref.Type == f.Ref.Type, mergeerr.IncompatibleFieldMapping, g.String(),
				"%v cannot be stored in %v", f.Ref, slot.Field.Ref)
			used[slot] = true
			m.mapping[f.Ref] = slot
			m.sourceFields = append(m.sourceFields, f.Ref)
		}
	}
	return m
}

// relaxSlot makes a shared slot at least as permissive as every field stored in it.
func relaxSlot(slot *Slot, f *program.Field) {
	if !f.Flags.IsFinal() {
		slot.Field.Flags = slot.Field.Flags.Without(program.AccFinal)
	}
	if f.Flags.Has(program.AccVolatile) {
		slot.Field.Flags = slot.Field.Flags.With(program.AccVolatile)
	}
}
