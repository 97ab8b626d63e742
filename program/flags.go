package program

import "strings"

// Flags holds access flags, using the class file encoding.
type Flags uint16

const (
	AccPublic     Flags = 0x0001
	AccPrivate    Flags = 0x0002
	AccProtected  Flags = 0x0004
	AccStatic     Flags = 0x0008
	AccFinal      Flags = 0x0010
	AccVolatile   Flags = 0x0040
	AccNative     Flags = 0x0100
	AccInterface  Flags = 0x0200
	AccAbstract   Flags = 0x0400
	AccSynthetic  Flags = 0x1000
	AccAnnotation Flags = 0x2000
	AccEnum       Flags = 0x4000
)

const visibilityMask = AccPublic | AccPrivate | AccProtected

var flagNames = []struct {
	flag Flags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccVolatile, "volatile"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccSynthetic, "synthetic"},
	{AccAnnotation, "annotation"},
	{AccEnum, "enum"},
}

func (f Flags) Has(other Flags) bool { return f&other == other }

func (f Flags) With(other Flags) Flags { return f | other }

func (f Flags) Without(other Flags) Flags { return f &^ other }

func (f Flags) IsStatic() bool    { return f.Has(AccStatic) }
func (f Flags) IsPrivate() bool   { return f.Has(AccPrivate) }
func (f Flags) IsAbstract() bool  { return f.Has(AccAbstract) }
func (f Flags) IsFinal() bool     { return f.Has(AccFinal) }
func (f Flags) IsInterface() bool { return f.Has(AccInterface) }
func (f Flags) IsNative() bool    { return f.Has(AccNative) }

// Visibility is the access class used when pairing fields of merged classes.
type Visibility int

const (
	Private Visibility = iota
	PackagePrivate
	Protected
	Public
)

func (v Visibility) String() string {
	switch v {
	case Private:
		return "private"
	case Protected:
		return "protected"
	case Public:
		return "public"
	default:
		return "package-private"
	}
}

func (f Flags) Visibility() Visibility {
	switch {
	case f.Has(AccPublic):
		return Public
	case f.Has(AccProtected):
		return Protected
	case f.Has(AccPrivate):
		return Private
	default:
		return PackagePrivate
	}
}

// WithVisibility replaces the visibility bits of f.
func (f Flags) WithVisibility(v Visibility) Flags {
	f = f.Without(visibilityMask)
	switch v {
	case Public:
		return f | AccPublic
	case Protected:
		return f | AccProtected
	case Private:
		return f | AccPrivate
	default:
		return f
	}
}

func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, " ")
}

// ParseFlags is the inverse of Flags.String. Unknown words are returned in unknown.
func ParseFlags(s string) (f Flags, unknown []string) {
outer:
	for _, word := range strings.Fields(s) {
		for _, fn := range flagNames {
			if fn.name == word {
				f |= fn.flag
				continue outer
			}
		}
		unknown = append(unknown, word)
	}
	return f, unknown
}
