// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"github.com/sqreen/go-detour/internal/callconv"
	"github.com/sqreen/go-detour/internal/il"
)

// signature is the calling convention of the synthesized method:
//   [this] [return buffer] original parameters...
// The synthesized method is static and takes the instance explicitly, by
// reference for value types.
type signature struct {
	params []*il.Param
	// Declared return type, void when returning through a buffer.
	ret *il.Type
	// Type of the value returned by the original.
	returnType   *il.Type
	hasThis      bool
	thisByRef    bool
	returnBuffer bool
}

func newSignature(original *il.Method, conv callconv.Convention) (*signature, error) {
	if original.ReturnType().IsByRef() {
		return nil, &UnsupportedError{Method: original, Reason: "by-reference return types cannot be returned by a generated method"}
	}

	returnType := conv.ReturnType
	if returnType == nil {
		returnType = original.ReturnType()
	}
	s := &signature{
		ret:        returnType,
		returnType: returnType,
	}

	if original.HasThis() {
		this := original.DeclaringType
		if this == nil {
			return nil, &UnsupportedError{Method: original, Reason: "instance method without declaring type"}
		}
		if this.IsValueType() {
			this = il.ByRefTo(this)
			s.thisByRef = true
		}
		s.hasThis = true
		s.params = append(s.params, &il.Param{Name: "this", Type: this})
	}

	if conv.ReturnBuffer {
		s.returnBuffer = true
		s.params = append(s.params, &il.Param{Name: "retbuf", Type: il.PointerTo(returnType)})
		s.ret = il.VoidType
	}

	s.params = append(s.params, original.Params...)
	return s, nil
}

// bufferArg returns the argument index of the return buffer.
func (s *signature) bufferArg() int {
	if s.hasThis {
		return 1
	}
	return 0
}

// argIndex returns the argument index of the i-th original parameter.
func (s *signature) argIndex(i int) int {
	n := i
	if s.hasThis {
		n++
	}
	if s.returnBuffer {
		n++
	}
	return n
}
