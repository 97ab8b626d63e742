// Package dispatch describes and emits the bodies of synthesized dispatch methods.
//
// A Plan is a small declarative program: load the receiver and the forwarded
// arguments, load the discriminator (from a field of the receiver or from a
// parameter), optionally store it into the class id field, then branch on it and
// invoke one implementation per case, returning its result. Emit turns a Plan into
// a program.Body; nothing else in this package knows about instructions.
package dispatch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cottand/hmerge/program"
)

// Discriminator says where the class id comes from.
type Discriminator struct {
	// Field is read from the receiver unless FromParam is set
	Field program.FieldRef
	// Param is the argument index of the class id when FromParam is set; 0 is the receiver
	Param     int
	FromParam bool
}

func FromField(f program.FieldRef) Discriminator { return Discriminator{Field: f} }
func FromParam(i int) Discriminator              { return Discriminator{Param: i, FromParam: true} }

func (d Discriminator) String() string {
	if d.FromParam {
		return fmt.Sprintf("arg%d", d.Param)
	}
	return "this." + d.Field.Name
}

// Target is an implementation a case forwards to.
type Target struct {
	Method program.MethodRef
	Invoke program.InvokeKind
}

func (t Target) String() string { return fmt.Sprintf("%v %v", t.Invoke, t.Method) }

type Case struct {
	Key    int32
	Target Target
}

// Plan is the body of one dispatch method.
type Plan struct {
	// Proto is the prototype of the dispatch method itself
	Proto program.Proto
	// Forward is how many arguments after the receiver are passed on to every target
	Forward       int
	Discriminator Discriminator
	// StoreInto, when set, receives the discriminator before dispatching
	StoreInto *program.FieldRef
	// Cases are taken when the discriminator equals their key. They are sorted by key
	// and never include the fallback.
	Cases []Case
	// Fallback is taken when no case matches
	Fallback Target
}

// NewPlan builds a plan from one target per class id. The fallback is removed from
// the explicit cases. cases must not be empty.
func NewPlan(proto program.Proto, forward int, disc Discriminator, cases map[int]Target, fallback Target) *Plan {
	p := &Plan{Proto: proto, Forward: forward, Discriminator: disc, Fallback: fallback}
	for key, target := range cases {
		if target == fallback {
			continue
		}
		p.Cases = append(p.Cases, Case{Key: int32(key), Target: target})
	}
	slices.SortFunc(p.Cases, func(a, b Case) int { return int(a.Key) - int(b.Key) })
	return p
}

// IsDirect is true when the plan needs no branch at all.
func (p *Plan) IsDirect() bool { return len(p.Cases) == 0 }

func (p *Plan) String() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "dispatch%v on %v", p.Proto, p.Discriminator)
	for _, c := range p.Cases {
		fmt.Fprintf(sb, "; %d -> %v", c.Key, c.Target)
	}
	fmt.Fprintf(sb, "; default -> %v", p.Fallback)
	return sb.String()
}
