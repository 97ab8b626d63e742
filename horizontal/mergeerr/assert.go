package mergeerr

// Assert panics with a Failure when cond does not hold.
// Use it for conditions that earlier phases guarantee; Recover turns the
// panic back into an error at the boundary of the merge pass.
func Assert(cond bool, code ErrCode, subject string, format string, args ...any) {
	if !cond {
		panic(New(code, subject, format, args...))
	}
}

// Fail panics with f.
func Fail(f *Failure) {
	panic(f)
}

// Recover stores a Failure raised by Assert or Fail into *err.
// Any other panic is propagated. It must be called directly by defer.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if f, ok := r.(*Failure); ok {
		*err = f
		return
	}
	panic(r)
}
