// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"fmt"

	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
)

// FinalizerState is the value of the finalizer guard slot of a synthesized
// method. It only moves forward: NotRun, then RanNormally when the
// finalizers ran after the original returned, or RanOnException when they
// ran from the exception handler. The handler only runs the finalizers the
// normal path didn't start, so that each one runs once.
type FinalizerState int32

const (
	NotRun FinalizerState = iota
	RanNormally
	RanOnException
)

func (s FinalizerState) String() string {
	switch s {
	case NotRun:
		return "not run"
	case RanNormally:
		return "ran normally"
	case RanOnException:
		return "ran on exception"
	}
	return fmt.Sprintf("FinalizerState(%d)", int32(s))
}

// Names of the local slots of the finalizer guard.
const (
	// FinalizerStateSlot holds the FinalizerState of a synthesized method.
	FinalizerStateSlot = "__finalizers"
	// FinalizersStartedSlot holds the number of finalizers started after the
	// original returned.
	FinalizersStartedSlot = "__finalizersStarted"
)

// emitFinalizers emits the finalizer calls of the normal path, then the
// handler of the region opened at entry, and closes it.
func (s *synthesis) emitFinalizers() error {
	g := s.gen
	exception := s.slots.exception
	guard := s.slots.finalizerState
	started := s.slots.finalizersStarted
	n := len(s.patches.Finalizers)

	rethrow := true
	for i, h := range s.patches.Finalizers {
		// Counted before the call: a finalizer throwing here has run.
		g.EmitI4(int32(i + 1))
		g.EmitLocal(il.Stloc, started)
		if err := s.emitFinalizerCall(h); err != nil {
			return err
		}
		if !h.Method.ReturnType().IsVoid() {
			rethrow = false
		}
	}
	s.emitSetState(RanNormally)

	noException := g.DefineLabel("no_exception")
	g.EmitLocal(il.Ldloc, exception)
	g.EmitBranch(il.Brfalse, noException)
	g.EmitLocal(il.Ldloc, exception)
	g.Emit(il.Throw)
	g.MarkLabel(noException)

	g.BeginCatchBlock(il.ExceptionType)
	g.EmitLocal(il.Stloc, exception)
	ran := g.DefineLabel("finalized")
	g.EmitLocal(il.Ldloc, guard)
	g.EmitBranch(il.Brtrue, ran)

	// Resume after the finalizers the normal path already started.
	resume := make([]*il.Label, n+1)
	for i := 1; i <= n; i++ {
		resume[i] = g.DefineLabel(fmt.Sprintf("resume_%d", i))
		g.EmitLocal(il.Ldloc, started)
		g.EmitI4(int32(i))
		g.Emit(il.Ceq)
		g.EmitBranch(il.Brtrue, resume[i])
	}
	for i, h := range s.patches.Finalizers {
		if i > 0 {
			g.MarkLabel(resume[i])
		}
		// A throwing finalizer doesn't prevent the next ones from running.
		g.BeginExceptionBlock()
		if err := s.emitFinalizerCall(h); err != nil {
			return err
		}
		g.BeginCatchBlock(il.ExceptionType)
		g.Emit(il.Pop)
		g.EndExceptionBlock()
	}
	g.MarkLabel(resume[n])
	s.emitSetState(RanOnException)
	g.MarkLabel(ran)

	swallowed := g.DefineLabel("swallowed")
	g.EmitLocal(il.Ldloc, exception)
	g.EmitBranch(il.Brfalse, swallowed)
	if rethrow {
		g.Emit(il.Rethrow)
	} else {
		g.EmitLocal(il.Ldloc, exception)
		g.Emit(il.Throw)
	}
	g.MarkLabel(swallowed)
	g.EndExceptionBlock()
	return nil
}

// emitFinalizerCall calls the finalizer. The exception it returns, if any,
// replaces the captured one: the last finalizer returning a value wins, and a
// null value swallows the exception.
func (s *synthesis) emitFinalizerCall(h *patch.Hook) error {
	if err := s.emitHookCall(h); err != nil {
		return err
	}
	if !h.Method.ReturnType().IsVoid() {
		s.gen.EmitLocal(il.Stloc, s.slots.exception)
	}
	return nil
}

func (s *synthesis) emitSetState(state FinalizerState) {
	s.gen.EmitI4(int32(state))
	s.gen.EmitLocal(il.Stloc, s.slots.finalizerState)
}
