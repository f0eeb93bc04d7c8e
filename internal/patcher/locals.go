// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
)

// slots are the local slots of a synthesized method.
type slots struct {
	// Copies of the original locals, used by the spliced body only.
	original []*emitter.Local
	// Value returned by the original, when it isn't void and hooks exist.
	result *emitter.Local
	// Shared state of every hook group declaring a __state parameter.
	state map[string]*emitter.Local
	// Private slots hooks can bind to by name.
	private map[string]*emitter.Local
	// Exception captured by finalizers and the finalizer guard.
	exception         *emitter.Local
	finalizerState    *emitter.Local
	finalizersStarted *emitter.Local
}

func (s *synthesis) declareLocals() {
	g := s.gen
	s.slots = slots{
		state:   make(map[string]*emitter.Local),
		private: make(map[string]*emitter.Local),
	}

	if body := s.original.Body; body != nil {
		for _, l := range body.Locals {
			s.slots.original = append(s.slots.original, g.DeclareLocal(l.Name, l.Type, l.Pinned))
		}
	}

	if !s.patches.HasHooks() {
		return
	}

	if !s.sig.returnType.IsVoid() {
		s.slots.result = g.DeclareLocal(patch.ResultName, s.sig.returnType, false)
		s.emitZero(s.slots.result)
	}

	for _, h := range s.patches.Hooks() {
		p := h.DeclaresState()
		if p == nil {
			continue
		}
		// The first declaration of the group gives the slot type.
		if _, exists := s.slots.state[h.Group]; exists {
			continue
		}
		l := g.DeclareLocal(patch.StateName, p.Type.ElementType(), false)
		s.emitZero(l)
		s.slots.state[h.Group] = l
	}

	if len(s.patches.Finalizers) > 0 {
		s.slots.finalizerState = g.DeclareLocal(FinalizerStateSlot, il.Int32Type, false)
		s.emitZero(s.slots.finalizerState)
		s.slots.finalizersStarted = g.DeclareLocal(FinalizersStartedSlot, il.Int32Type, false)
		s.emitZero(s.slots.finalizersStarted)
		s.slots.exception = g.DeclareLocal(patch.ExceptionName, il.ExceptionType, false)
		s.emitZero(s.slots.exception)
		s.slots.private[patch.ExceptionName] = s.slots.exception
	}
}

// emitZero stores the zero value of its type into the local.
func (s *synthesis) emitZero(l *emitter.Local) {
	g := s.gen
	if l.Type.Kind == il.Struct {
		g.EmitLocal(il.Ldloca, l)
		g.EmitType(il.Initobj, l.Type)
		return
	}
	s.emitZeroConstant(l.Type)
	g.EmitLocal(il.Stloc, l)
}

// emitZeroConstant pushes the zero value of a non-struct type.
func (s *synthesis) emitZeroConstant(t *il.Type) {
	g := s.gen
	switch t.Kind {
	case il.Class, il.ByRef, il.Pointer:
		g.Emit(il.Ldnull)
	case il.Int64, il.Uint64, il.Int, il.Uint:
		g.EmitI8(0)
	case il.Float32:
		g.EmitR4(0)
	case il.Float64:
		g.EmitR8(0)
	default:
		g.EmitI4(0)
	}
}

// emitDefault pushes the zero value of any type.
func (s *synthesis) emitDefault(t *il.Type) {
	if t.Kind != il.Struct {
		s.emitZeroConstant(t)
		return
	}
	tmp := s.gen.DeclareLocal("", t, false)
	s.emitZero(tmp)
	s.gen.EmitLocal(il.Ldloc, tmp)
}
