// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package vm

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// program is the executable form of a method body, checked once.
type program struct {
	method   *il.Method
	code     []il.Instruction
	argTypes []*il.Type
	targets  map[*il.Label]int
	// Regions in the order of their BeginTry. Nested regions come after
	// their parent.
	regions []region
}

type region struct {
	try, catch, end int
	catchType       *il.Type
}

func (r region) protects(pc int) bool { return pc > r.try && pc < r.catch }

func (r region) handles(pc int) bool { return pc > r.catch && pc < r.end }

func compile(m *il.Method) (*program, error) {
	if m.Body == nil {
		return nil, sqerrors.Errorf("method `%s` has no body", m)
	}
	p := &program{
		method:   m,
		code:     m.Body.Code,
		argTypes: argTypes(m),
		targets:  make(map[*il.Label]int),
	}

	var open []int
	for pc := range p.code {
		ins := &p.code[pc]
		for _, l := range ins.Labels {
			if _, exists := p.targets[l]; exists {
				return nil, sqerrors.Errorf("label `%s` bound more than once", l)
			}
			p.targets[l] = pc
		}

		switch ins.Op {
		case il.BeginTry:
			open = append(open, len(p.regions))
			p.regions = append(p.regions, region{try: pc, catch: -1})
		case il.BeginCatch:
			if len(open) == 0 || p.regions[open[len(open)-1]].catch >= 0 {
				return nil, sqerrors.Errorf("instruction %d: catch without protected region", pc)
			}
			r := &p.regions[open[len(open)-1]]
			r.catch = pc
			r.catchType = ins.Type()
			if r.catchType == nil {
				r.catchType = il.ExceptionType
			}
		case il.EndTry:
			if len(open) == 0 || p.regions[open[len(open)-1]].catch < 0 {
				return nil, sqerrors.Errorf("instruction %d: end of region without catch", pc)
			}
			p.regions[open[len(open)-1]].end = pc
			open = open[:len(open)-1]
		}

		switch {
		case ins.Op.IsLocalAccess():
			if n := ins.Int(); n < 0 || n >= len(m.Body.Locals) {
				return nil, sqerrors.Errorf("instruction %d `%s`: local index out of range", pc, ins)
			}
		case ins.Op.IsArgAccess():
			if n := ins.Int(); n < 0 || n >= len(p.argTypes) {
				return nil, sqerrors.Errorf("instruction %d `%s`: argument index out of range", pc, ins)
			}
		case ins.Op == il.Call:
			if ins.Method() == nil {
				return nil, sqerrors.Errorf("instruction %d: call without method", pc)
			}
		}
	}
	if len(open) > 0 {
		return nil, sqerrors.Errorf("%d exception region(s) not closed", len(open))
	}

	for pc := range p.code {
		ins := &p.code[pc]
		if !ins.Op.IsBranch() {
			continue
		}
		if _, exists := p.targets[ins.Label()]; !exists {
			return nil, sqerrors.Errorf("instruction %d `%s`: unbound branch target", pc, ins)
		}
	}
	return p, nil
}

// argTypes returns the types of the argument slots of `m`.
func argTypes(m *il.Method) []*il.Type {
	types := make([]*il.Type, 0, m.NumArgs())
	if m.HasThis() {
		this := m.DeclaringType
		if this.IsValueType() {
			this = il.ByRefTo(this)
		}
		types = append(types, this)
	}
	for _, p := range m.Params {
		t := p.Type
		if p.Out && !t.IsByRef() {
			t = il.ByRefTo(t)
		}
		types = append(types, t)
	}
	return types
}
