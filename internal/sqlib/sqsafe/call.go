// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package sqsafe executes foreign code, such as native methods or host
// activation strategies, without letting its panics escape.
package sqsafe

import (
	"fmt"

	"github.com/pkg/errors"
)

// PanicError is returned by Call when the function panicked.
type PanicError struct {
	// Value given to panic().
	Value interface{}
	// Value as an error, annotated with the stack trace of the recovery.
	Err error
}

func (e *PanicError) Error() string {
	return "panic: " + e.Err.Error()
}

func (e *PanicError) Unwrap() error {
	return e.Err
}

// Call calls `f` and returns its error, or a *PanicError when it panicked.
func Call(f func() error) (err error) {
	defer func() {
		// panic(nil) cannot be told apart from no panic.
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return f()
}

func newPanicError(r interface{}) *PanicError {
	var err error
	if e, ok := r.(error); ok {
		err = errors.WithStack(e)
	} else {
		err = errors.New(fmt.Sprint(r))
	}
	return &PanicError{Value: r, Err: err}
}
