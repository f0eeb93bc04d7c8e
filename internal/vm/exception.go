// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package vm

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqsafe"
	"golang.org/x/xerrors"
)

// Exception is the error of a call terminated by a thrown exception.
type Exception struct {
	Value *Object
}

func (e *Exception) Error() string {
	return "unhandled exception " + e.Value.String()
}

// NewException returns a new exception object of type `t`, which must
// derive from il.ExceptionType.
func NewException(t *il.Type, message string) *Object {
	o := NewObject(t)
	_ = o.Set(il.ExceptionMessageField.Name, message)
	return o
}

// Throw returns the error native methods return to throw `exception`.
func Throw(exception *Object) error {
	return &Exception{Value: exception}
}

// AsException returns the exception carried by `err`, if any.
func AsException(err error) (*Object, bool) {
	var exception *Exception
	if xerrors.As(err, &exception) {
		return exception.Value, true
	}
	return nil, false
}

// nativeException converts the error returned by a native method into a
// thrown exception.
func nativeException(err error) *Exception {
	if exception, ok := AsException(err); ok {
		return &Exception{Value: exception}
	}
	var panicErr *sqsafe.PanicError
	if xerrors.As(err, &panicErr) {
		return &Exception{Value: NewException(il.ExceptionType, panicErr.Error())}
	}
	return &Exception{Value: NewException(il.ExceptionType, err.Error())}
}
