// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package bodycopier splices the instruction stream of an original method
// into a generator, after having applied the registered rewriters to it.
//
// The original body is never modified: rewriters get a private copy of the
// stream, so that concurrent syntheses can share the original method.
package bodycopier

import (
	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// Rewriter transforms an instruction stream. It may return the given slice
// modified in place or a new one. Branch targets are the labels bound to the
// instructions; rewriters can create new ones with il.NewLabel().
type Rewriter interface {
	Rewrite(code []il.Instruction) ([]il.Instruction, error)
}

// RewriterFunc adapts a function into a Rewriter.
type RewriterFunc func(code []il.Instruction) ([]il.Instruction, error)

func (f RewriterFunc) Rewrite(code []il.Instruction) ([]il.Instruction, error) {
	return f(code)
}

// Result describes how the spliced body exits.
type Result struct {
	// EndLabels mark the exit points of the body, where the return value, if
	// any, is on top of the stack. They are already marked when returned.
	EndLabels []*il.Label
	// EndsWithReturn is true when the last copied instruction is a return
	// instruction, left untouched.
	EndsWithReturn bool
}

// Options of a copy.
type Options struct {
	// Rewriters are applied in order before emission.
	Rewriters []Rewriter
	// RedirectReturns replaces every return instruction with a branch to a
	// shared exit point, so that the caller can emit code after the body.
	RedirectReturns bool
	// ReturnsValue is true when the body returns a value. Such a body cannot be
	// redirected from inside an exception region, since leaving a region
	// empties the stack.
	ReturnsValue bool
}

// Copy rewrites the body and emits it into `g`. Local slot i of the body is
// mapped to `locals[i]`. A nil body is copied as an empty stream, so that
// rewriters can provide the whole implementation of body-less methods.
func Copy(g *emitter.Generator, body *il.Body, locals []*emitter.Local, opts Options) (*Result, error) {
	var code []il.Instruction
	if body != nil {
		code = make([]il.Instruction, len(body.Code))
		for i, ins := range body.Code {
			code[i] = ins.Clone()
		}
	}

	for i, r := range opts.Rewriters {
		var err error
		code, err = r.Rewrite(code)
		if err != nil {
			return nil, sqerrors.Wrapf(err, "rewriter %d", i)
		}
	}

	c := copier{
		g:      g,
		locals: locals,
		labels: make(map[*il.Label]*il.Label),
	}
	return c.emit(code, opts)
}

type copier struct {
	g      *emitter.Generator
	locals []*emitter.Local
	// Map of body labels to generator labels.
	labels map[*il.Label]*il.Label
}

func (c *copier) label(l *il.Label) *il.Label {
	if mapped, ok := c.labels[l]; ok {
		return mapped
	}
	mapped := c.g.DefineLabel(l.Name)
	c.labels[l] = mapped
	return mapped
}

func (c *copier) local(i int) (*emitter.Local, error) {
	if i < 0 || i >= len(c.locals) {
		return nil, sqerrors.Errorf("local slot index %d out of range [0,%d)", i, len(c.locals))
	}
	return c.locals[i], nil
}

func (c *copier) emit(code []il.Instruction, opts Options) (*Result, error) {
	redirect := opts.RedirectReturns
	res := &Result{}
	depth := 0
	bound := make(map[*il.Label]bool)
	for i := range code {
		ins := &code[i]
		for _, l := range ins.Labels {
			bound[l] = true
			c.g.MarkLabel(c.label(l))
		}

		switch {
		case ins.Op == il.Ret && redirect:
			if depth > 0 && opts.ReturnsValue {
				return nil, sqerrors.Errorf("instruction %d: cannot redirect a value return from inside an exception region", i)
			}
			exit := c.g.DefineLabel("")
			res.EndLabels = append(res.EndLabels, exit)
			// Branching out of a protected region requires a leave.
			if depth > 0 {
				c.g.EmitBranch(il.Leave, exit)
			} else {
				c.g.EmitBranch(il.Br, exit)
			}

		case ins.Op.IsBranch():
			target := ins.Label()
			if target == nil {
				return nil, sqerrors.Errorf("instruction %d `%s`: missing branch target", i, ins)
			}
			c.g.EmitBranch(ins.Op, c.label(target))

		case ins.Op.IsLocalAccess():
			local, err := c.local(ins.Int())
			if err != nil {
				return nil, sqerrors.Wrapf(err, "instruction %d `%s`", i, ins)
			}
			c.g.EmitLocal(ins.Op, local)

		case ins.Op == il.BeginTry:
			depth++
			c.g.OpenTry()

		case ins.Op == il.BeginCatch:
			c.g.OpenCatch(ins.Type())

		case ins.Op == il.EndTry:
			depth--
			c.g.CloseTry()

		default:
			c.g.EmitInstruction(*ins)
		}
	}

	// Every branch target must be bound to an instruction of the stream.
	for l := range c.labels {
		if !bound[l] {
			return nil, sqerrors.Errorf("branch target `%s` is not bound to any instruction", l)
		}
	}

	for _, l := range res.EndLabels {
		c.g.MarkLabel(l)
	}
	res.EndsWithReturn = !redirect && len(code) > 0 && code[len(code)-1].Op == il.Ret
	return res, c.g.Err()
}

// ShiftArguments returns the rewriter incrementing the argument indices
// greater or equal to `from`. It adapts a body to a signature having a new
// parameter inserted at index `from`, such as a hidden return buffer.
func ShiftArguments(from int) Rewriter {
	return RewriterFunc(func(code []il.Instruction) ([]il.Instruction, error) {
		for i := range code {
			ins := &code[i]
			if !ins.Op.IsArgAccess() {
				continue
			}
			if n := ins.Int(); n >= from {
				ins.Operand = n + 1
			}
		}
		return code, nil
	})
}
