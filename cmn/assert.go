/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package cmn

// Assert panics if cond is false. Use only for invariants whose violation
// indicates a programming error, never for recoverable runtime conditions.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg is Assert with a caller-supplied message, for the assertion
// sites worth documenting at the call site.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertNoErr panics if err is non-nil. Reserved for errors that can only
// originate from this process's own prior writes (e.g. re-unmarshaling
// a struct this process just marshaled).
func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}
