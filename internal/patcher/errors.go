// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"fmt"

	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"golang.org/x/xerrors"
)

// UnsupportedError is returned when the original method has a shape that
// cannot be replaced. Callers can skip such methods.
type UnsupportedError struct {
	Method *il.Method
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot patch `%s`: %s", e.Method.FullName(), e.Reason)
}

// IsUnsupported returns true when the error tells the original method cannot
// be replaced.
func IsUnsupported(err error) bool {
	var unsupported *UnsupportedError
	return xerrors.As(err, &unsupported)
}

// HookError is returned when a hook declaration doesn't fit the original
// method it is applied to.
type HookError struct {
	Hook     *patch.Hook
	Original *il.Method
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s patching `%s`: %v", e.Hook, e.Original.FullName(), e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// ErrMissingBody is returned when prefixes, postfixes or finalizers target a
// method without instruction stream.
var ErrMissingBody = xerrors.New("the method has no body: only rewriters can patch it")
