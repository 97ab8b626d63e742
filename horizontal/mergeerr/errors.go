// Package mergeerr holds the fatal diagnostics of class merging.
//
// Everything reported here is a compiler bug, not a problem with the input program:
// a policy returned an inconsistent group, a field slot mapping does not fit, or a
// merged type is still referenced after it was deleted. Callers abort compilation.
package mergeerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// enableDebugErrorPrinting makes FormatWithCode include the frame that raised the failure
const enableDebugErrorPrinting bool = true

type ErrCode int

const (
	None ErrCode = iota
	InvariantViolation
	EmptyGroup
	TrivialGroup
	MixedGroup
	IncompatibleFieldMapping
	UnresolvedType
	MissingClass
	MemberCollision
)

var codeNames = map[ErrCode]string{
	None:                     "unclassified",
	InvariantViolation:       "invariant violation",
	EmptyGroup:               "empty merge group",
	TrivialGroup:             "trivial merge group",
	MixedGroup:               "mixed interface and class group",
	IncompatibleFieldMapping: "incompatible field mapping",
	UnresolvedType:           "unresolved merged type",
	MissingClass:             "missing class",
	MemberCollision:          "member collision",
}

func (c ErrCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code %d", int(c))
}

// Failure is a fatal merge diagnostic. Subject names the offending group or class.
type Failure struct {
	code    ErrCode
	Subject string
	// cause carries the message and the stack where the failure was raised
	cause error
}

func New(code ErrCode, subject string, format string, args ...any) *Failure {
	return &Failure{
		code:    code,
		Subject: subject,
		cause:   errors.Errorf(format, args...),
	}
}

// Wrap turns err into a Failure, keeping err as the cause.
func Wrap(err error, code ErrCode, subject string) *Failure {
	return &Failure{code: code, Subject: subject, cause: errors.WithStack(err)}
}

func (f *Failure) Code() ErrCode { return f.code }

func (f *Failure) Error() string {
	if f.Subject == "" {
		return fmt.Sprintf("%v: %v", f.code, f.cause)
	}
	return fmt.Sprintf("%v in %s: %v", f.code, f.Subject, f.cause)
}

func (f *Failure) Unwrap() error { return f.cause }

// Format supports %+v, printing the stack trace where the failure was raised.
func (f *Failure) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "%s\n%+v", f.Error(), f.cause)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, f.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", f.Error())
	}
}

// FormatWithCode renders a failure as "(E003) message", prefixed with the raising frame
// when debug printing is enabled.
func FormatWithCode(f *Failure) string {
	if enableDebugErrorPrinting {
		if frame := raisingFrame(f); frame != "" {
			return fmt.Sprintf("%s:(E%03d) %s", frame, f.code, f.Error())
		}
	}
	return fmt.Sprintf("(E%03d) %s", f.code, f.Error())
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func raisingFrame(f *Failure) string {
	var st stackTracer
	if !errors.As(f.cause, &st) {
		return ""
	}
	trace := st.StackTrace()
	// skip frames of this package
	for _, frame := range trace {
		name := fmt.Sprintf("%n", frame)
		file := fmt.Sprintf("%+s", frame)
		if !strings.Contains(file, "/mergeerr/") {
			return fmt.Sprintf("%s:%d", name, frame)
		}
	}
	return ""
}
