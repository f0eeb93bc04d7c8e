// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package il

import (
	"fmt"
	"strings"
)

// Param is a method parameter. By-reference parameters have a ByRef type.
type Param struct {
	Name string
	Type *Type
	// Out is true for output-only by-reference parameters.
	Out bool
}

// IsByRef returns true when the parameter is passed by reference, including
// output parameters.
func (p *Param) IsByRef() bool {
	return p.Out || p.Type.IsByRef()
}

func (p *Param) String() string {
	if p.Out && !p.Type.IsByRef() {
		return fmt.Sprintf("out %s %s", p.Type, p.Name)
	}
	return fmt.Sprintf("%s %s", p.Type, p.Name)
}

// MethodKind tells how a method can be referred to.
type MethodKind uint8

const (
	// Regular methods can be referred to by a token.
	Regular MethodKind = iota
	// Constructor methods can be referred to by a token.
	Constructor
	// Dynamic methods were created at run time and have no token.
	Dynamic
)

// NativeFunc is the implementation of a method provided by the host rather
// than by an instruction stream. By-reference arguments are passed as the
// host's reference values. A returned error is raised as an exception.
type NativeFunc func(args []interface{}) (interface{}, error)

// Method describes a method: its signature and, when it has one, its
// compiled instruction stream.
type Method struct {
	Name          string
	Kind          MethodKind
	DeclaringType *Type
	Static        bool
	Params        []*Param
	Return        *Type
	// Body is the compiled instruction stream. It is nil for methods
	// implemented natively or without implementation.
	Body *Body
	// Native is the host implementation of the method.
	Native NativeFunc
	// ReturnBuffer is true when the method returns its value through the
	// hidden pointer parameter following the instance parameter, if any.
	// Only synthesized methods have it set.
	ReturnBuffer bool
}

// HasToken returns true when the method can be loaded as a token.
func (m *Method) HasToken() bool {
	return m.Kind != Dynamic
}

// ReturnType returns the return type, which is never nil.
func (m *Method) ReturnType() *Type {
	if m.Return == nil {
		return VoidType
	}
	return m.Return
}

// HasThis returns true when the method has an implicit instance parameter.
func (m *Method) HasThis() bool {
	return !m.Static
}

// NumArgs returns the number of argument slots of the method, including the
// instance parameter.
func (m *Method) NumArgs() int {
	if m.HasThis() {
		return len(m.Params) + 1
	}
	return len(m.Params)
}

// FullName returns the fully qualified method name.
func (m *Method) FullName() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return m.DeclaringType.Name + "::" + m.Name
}

func (m *Method) String() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	var static string
	if m.Static {
		static = "static "
	}
	return fmt.Sprintf("%s%s %s(%s)", static, m.ReturnType(), m.FullName(), strings.Join(params, ", "))
}

// ParamIndex returns the index of the parameter named `name`, or -1.
func (m *Method) ParamIndex(name string) int {
	for i, p := range m.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// LocalInfo describes a local variable slot.
type LocalInfo struct {
	Name   string
	Type   *Type
	Pinned bool
}

// Body is an instruction stream along with its local variable table.
// Exception regions are delimited in the stream by the BeginTry, BeginCatch
// and EndTry pseudo-instructions.
type Body struct {
	Locals []*LocalInfo
	Code   []Instruction
}

func (b *Body) String() string {
	var s strings.Builder
	for i, l := range b.Locals {
		pinned := ""
		if l.Pinned {
			pinned = " pinned"
		}
		fmt.Fprintf(&s, ".local %d %s%s", i, l.Type, pinned)
		if l.Name != "" {
			fmt.Fprintf(&s, " (%s)", l.Name)
		}
		s.WriteByte('\n')
	}
	for i := range b.Code {
		fmt.Fprintf(&s, "%04d %s\n", i, &b.Code[i])
	}
	return s.String()
}
