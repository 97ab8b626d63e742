package program

// KeepInfo answers which parts of the program must survive optimization unchanged.
// It is computed by the whole-program liveness analysis.
type KeepInfo interface {
	IsRenameAllowed(t Type) bool
	IsShrinkAllowed(ref MemberRef) bool
}

// KeepAll allows renaming and shrinking of everything not explicitly pinned.
type KeepAll struct {
	PinnedClasses map[Type]bool
	PinnedMembers map[string]bool // keyed by MemberRef.String()
}

var _ KeepInfo = KeepAll{}

func (k KeepAll) IsRenameAllowed(t Type) bool {
	return !k.PinnedClasses[t]
}

func (k KeepAll) IsShrinkAllowed(ref MemberRef) bool {
	return !k.PinnedMembers[ref.String()]
}
