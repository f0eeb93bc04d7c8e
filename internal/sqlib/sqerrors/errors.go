// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package sqerrors provides the error constructors of the module. Every
// error they return carries the stack trace of its creation and is printed
// with it by the `%+v` verb.
package sqerrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/xerrors"
)

func New(message string) error {
	return errors.New(message)
}

func Errorf(format string, args ...interface{}) error {
	return errors.New(fmt.Sprintf(format, args...))
}

// Wrap prefixes the message of `err` with `message`. The result unwraps to
// `err`.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrap(err, fmt.Sprintf(format, args...))
}

// StackTrace returns the deepest stack trace of the chain of wrapped errors,
// nil if none.
func StackTrace(err error) (st errors.StackTrace) {
	for err != nil {
		if tracer, ok := err.(interface{ StackTrace() errors.StackTrace }); ok {
			st = tracer.StackTrace()
		}
		err = xerrors.Unwrap(err)
	}
	return st
}

// ErrorCollection is an error made of several errors. It matches any of
// them with xerrors.Is.
type ErrorCollection []error

func (c ErrorCollection) Error() string {
	var s strings.Builder
	s.WriteString("multiple errors occurred:")
	for i, e := range c {
		if i > 0 {
			s.WriteByte(';')
		}
		fmt.Fprintf(&s, " (error %d) %s", i+1, e)
	}
	return s.String()
}

func (c ErrorCollection) Is(target error) bool {
	for _, e := range c {
		if xerrors.Is(e, target) {
			return true
		}
	}
	return false
}

func (c *ErrorCollection) Add(e error) {
	*c = append(*c, e)
}

// ToError returns nil when the collection is empty.
func (c ErrorCollection) ToError() error {
	if len(c) == 0 {
		return nil
	}
	return c
}
