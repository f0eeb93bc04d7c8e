// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package emitter builds instruction streams one instruction at a time. It
// owns the local slot table, the labels and the exception regions of the
// method being built, and checks when finishing that every label was marked
// exactly once and that every region was closed.
//
// A Generator is not safe for concurrent use: every synthesis uses its own.
// The first misuse is recorded and returned by Finish(), so that emission
// code doesn't need to check errors after every call.
package emitter

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// Local is a local slot declared by the generator.
type Local struct {
	Index  int
	Name   string
	Type   *il.Type
	Pinned bool
}

type labelState struct {
	marked bool
}

type region struct {
	// End label of regions opened with BeginExceptionBlock(), nil otherwise.
	end     *il.Label
	handler bool
}

type Generator struct {
	locals  []*Local
	code    []il.Instruction
	labels  map[*il.Label]*labelState
	defined []*il.Label
	// Labels marked but not yet bound to an instruction.
	pending []*il.Label
	regions []*region
	err     error
}

func New() *Generator {
	return &Generator{
		labels: make(map[*il.Label]*labelState),
	}
}

func (g *Generator) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Err returns the first emission error.
func (g *Generator) Err() error {
	return g.err
}

// DeclareLocal declares a new local slot.
func (g *Generator) DeclareLocal(name string, t *il.Type, pinned bool) *Local {
	if t == nil || t.IsVoid() {
		g.fail(sqerrors.Errorf("cannot declare local `%s` of type void", name))
	}
	l := &Local{
		Index:  len(g.locals),
		Name:   name,
		Type:   t,
		Pinned: pinned,
	}
	g.locals = append(g.locals, l)
	return l
}

// Locals returns the declared local slots.
func (g *Generator) Locals() []*Local {
	return g.locals
}

// DefineLabel returns a new label which must be marked once before finishing.
func (g *Generator) DefineLabel(name string) *il.Label {
	l := il.NewLabel(name)
	g.labels[l] = &labelState{}
	g.defined = append(g.defined, l)
	return l
}

// MarkLabel binds the label to the next emitted instruction.
func (g *Generator) MarkLabel(l *il.Label) {
	state, ok := g.labels[l]
	if !ok {
		g.fail(sqerrors.Errorf("label `%s` was not defined by this generator", l))
		return
	}
	if state.marked {
		g.fail(sqerrors.Errorf("label `%s` is marked more than once", l))
		return
	}
	state.marked = true
	g.pending = append(g.pending, l)
}

// Len returns the number of instructions emitted so far.
func (g *Generator) Len() int {
	return len(g.code)
}

func (g *Generator) emit(ins il.Instruction) {
	if len(g.pending) > 0 {
		ins.Labels = append(ins.Labels, g.pending...)
		g.pending = nil
	}
	g.code = append(g.code, ins)
}

// Emit emits an operation without operand.
func (g *Generator) Emit(op il.OpCode) {
	g.emit(il.Instruction{Op: op})
}

// EmitArg emits an argument access.
func (g *Generator) EmitArg(op il.OpCode, i int) {
	if !op.IsArgAccess() {
		g.fail(sqerrors.Errorf("unexpected argument operand for `%s`", op))
	}
	g.emit(il.Instruction{Op: op, Operand: i})
}

// EmitLocal emits a local slot access.
func (g *Generator) EmitLocal(op il.OpCode, l *Local) {
	if !op.IsLocalAccess() {
		g.fail(sqerrors.Errorf("unexpected local operand for `%s`", op))
	}
	if l == nil || l.Index >= len(g.locals) || g.locals[l.Index] != l {
		g.fail(sqerrors.Errorf("local slot was not declared by this generator"))
		return
	}
	g.emit(il.Instruction{Op: op, Operand: l.Index})
}

// EmitBranch emits a branch to a label defined by this generator.
func (g *Generator) EmitBranch(op il.OpCode, l *il.Label) {
	if !op.IsBranch() {
		g.fail(sqerrors.Errorf("unexpected label operand for `%s`", op))
	}
	if _, ok := g.labels[l]; !ok {
		g.fail(sqerrors.Errorf("branch target `%s` was not defined by this generator", l))
	}
	g.emit(il.Instruction{Op: op, Operand: l})
}

// EmitCall emits a call to `m`.
func (g *Generator) EmitCall(m *il.Method) {
	g.emit(il.Instruction{Op: il.Call, Operand: m})
}

// EmitField emits a field access.
func (g *Generator) EmitField(op il.OpCode, f *il.Field) {
	g.emit(il.Instruction{Op: op, Operand: f})
}

// EmitType emits an operation taking a type operand.
func (g *Generator) EmitType(op il.OpCode, t *il.Type) {
	g.emit(il.Instruction{Op: op, Operand: t})
}

// EmitToken emits the load of the token of `m`.
func (g *Generator) EmitToken(m *il.Method) {
	g.emit(il.Instruction{Op: il.Ldtoken, Operand: m})
}

func (g *Generator) EmitI4(v int32)   { g.emit(il.Instruction{Op: il.LdcI4, Operand: v}) }
func (g *Generator) EmitI8(v int64)   { g.emit(il.Instruction{Op: il.LdcI8, Operand: v}) }
func (g *Generator) EmitR4(v float32) { g.emit(il.Instruction{Op: il.LdcR4, Operand: v}) }
func (g *Generator) EmitR8(v float64) { g.emit(il.Instruction{Op: il.LdcR8, Operand: v}) }

// EmitInstruction emits an already-built instruction whose operand doesn't
// refer to local slots or labels, such as copied instructions.
func (g *Generator) EmitInstruction(ins il.Instruction) {
	switch {
	case ins.Op.IsBranch(), ins.Op.IsLocalAccess():
		g.fail(sqerrors.Errorf("instruction `%s` must be emitted with its typed emitter", &ins))
		return
	case ins.Op.IsRegion():
		g.fail(sqerrors.Errorf("region pseudo-instruction `%s` must be emitted with the region methods", &ins))
		return
	}
	g.emit(il.Instruction{Op: ins.Op, Operand: ins.Operand})
}

// OpenTry opens a protected region whose exits are explicitly emitted by the
// caller.
func (g *Generator) OpenTry() {
	g.regions = append(g.regions, &region{})
	g.emit(il.Instruction{Op: il.BeginTry})
}

// OpenCatch ends the protected part of the innermost region and starts its
// handler catching exceptions of type `t`.
func (g *Generator) OpenCatch(t *il.Type) {
	r := g.top()
	if r == nil || r.handler {
		g.fail(sqerrors.New("catch block without an open protected region"))
		return
	}
	r.handler = true
	g.emit(il.Instruction{Op: il.BeginCatch, Operand: t})
}

// CloseTry closes the innermost region.
func (g *Generator) CloseTry() {
	r := g.top()
	if r == nil || !r.handler {
		g.fail(sqerrors.New("end of exception block without a catch block"))
		return
	}
	g.regions = g.regions[:len(g.regions)-1]
	g.emit(il.Instruction{Op: il.EndTry})
}

func (g *Generator) top() *region {
	if len(g.regions) == 0 {
		return nil
	}
	return g.regions[len(g.regions)-1]
}

// BeginExceptionBlock opens a protected region and returns the label marking
// the end of the whole block. The protected part and the handler are exited
// with a Leave to this label, emitted by BeginCatchBlock() and
// EndExceptionBlock().
func (g *Generator) BeginExceptionBlock() *il.Label {
	end := g.DefineLabel("")
	g.OpenTry()
	g.top().end = end
	return end
}

// BeginCatchBlock leaves the protected part of the block and starts its
// handler for exceptions of type `t`. The thrown value is on the stack when
// entering the handler.
func (g *Generator) BeginCatchBlock(t *il.Type) {
	r := g.top()
	if r == nil || r.end == nil {
		g.fail(sqerrors.New("catch block without an exception block"))
		return
	}
	g.EmitBranch(il.Leave, r.end)
	g.OpenCatch(t)
}

// EndExceptionBlock leaves the handler and closes the block.
func (g *Generator) EndExceptionBlock() {
	r := g.top()
	if r == nil || r.end == nil {
		g.fail(sqerrors.New("end of exception block without an exception block"))
		return
	}
	g.EmitBranch(il.Leave, r.end)
	g.CloseTry()
	g.MarkLabel(r.end)
}

// Depth returns the number of open regions.
func (g *Generator) Depth() int {
	return len(g.regions)
}

// Finish checks the emitted stream and returns it along with the local slot
// table.
func (g *Generator) Finish() (*il.Body, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.regions) > 0 {
		return nil, sqerrors.Errorf("%d exception region(s) not closed", len(g.regions))
	}
	for _, l := range g.defined {
		if !g.labels[l].marked {
			return nil, sqerrors.Errorf("label `%s` is never marked", l)
		}
	}
	if len(g.pending) > 0 {
		// Labels marked at the very end need an instruction to bind to.
		g.Emit(il.Nop)
	}

	body := &il.Body{
		Locals: make([]*il.LocalInfo, len(g.locals)),
		Code:   make([]il.Instruction, len(g.code)),
	}
	for i, l := range g.locals {
		body.Locals[i] = &il.LocalInfo{Name: l.Name, Type: l.Type, Pinned: l.Pinned}
	}
	copy(body.Code, g.code)
	return body, nil
}
