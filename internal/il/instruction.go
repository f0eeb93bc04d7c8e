// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package il

import (
	"fmt"
	"strings"
)

// Label is a branch target. It is bound to the instruction listing it in its
// Labels.
type Label struct {
	Name string
}

// NewLabel returns a new label. Labels are compared by identity.
func NewLabel(name string) *Label {
	return &Label{Name: name}
}

func (l *Label) String() string {
	if l.Name == "" {
		return fmt.Sprintf("L_%p", l)
	}
	return l.Name
}

// Instruction is an operation and its operand. Labels bound to the
// instruction are listed in Labels.
type Instruction struct {
	Op      OpCode
	Operand interface{}
	Labels  []*Label
}

// I returns a new instruction.
func I(op OpCode, operand ...interface{}) Instruction {
	ins := Instruction{Op: op}
	if len(operand) > 0 {
		ins.Operand = operand[0]
	}
	return ins
}

// WithLabels binds the given labels to the instruction.
func (ins Instruction) WithLabels(labels ...*Label) Instruction {
	ins.Labels = append(append([]*Label(nil), ins.Labels...), labels...)
	return ins
}

// Clone returns a copy of the instruction not sharing its label list.
func (ins Instruction) Clone() Instruction {
	if ins.Labels != nil {
		ins.Labels = append([]*Label(nil), ins.Labels...)
	}
	return ins
}

// Label returns the branch target of the instruction.
func (ins *Instruction) Label() *Label {
	l, _ := ins.Operand.(*Label)
	return l
}

// Int returns the integer operand of the instruction.
func (ins *Instruction) Int() int {
	i, _ := ins.Operand.(int)
	return i
}

// Method returns the method operand of the instruction.
func (ins *Instruction) Method() *Method {
	m, _ := ins.Operand.(*Method)
	return m
}

// Field returns the field operand of the instruction.
func (ins *Instruction) Field() *Field {
	f, _ := ins.Operand.(*Field)
	return f
}

// Type returns the type operand of the instruction.
func (ins *Instruction) Type() *Type {
	t, _ := ins.Operand.(*Type)
	return t
}

func (ins *Instruction) String() string {
	var s strings.Builder
	for _, l := range ins.Labels {
		s.WriteString(l.String())
		s.WriteString(": ")
	}
	s.WriteString(ins.Op.String())
	switch op := ins.Operand.(type) {
	case nil:
	case *Method:
		fmt.Fprintf(&s, " %s", op.FullName())
	case string:
		fmt.Fprintf(&s, " %q", op)
	default:
		fmt.Fprintf(&s, " %v", op)
	}
	return s.String()
}
