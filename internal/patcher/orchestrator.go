// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"github.com/sqreen/go-detour/internal/bodycopier"
	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// synthesis is the private emission state of one synthesized method.
type synthesis struct {
	original *il.Method
	patches  *patch.Set
	sig      *signature
	gen      *emitter.Generator
	slots    slots
	// Branch target of prefixes skipping the original, nil when no prefix
	// can skip it.
	skip *il.Label
}

// checkHooks rejects hooks whose return type doesn't fit their category.
func (s *synthesis) checkHooks() error {
	fail := func(h *patch.Hook, format string, args ...interface{}) error {
		return &HookError{Hook: h, Original: s.original, Err: sqerrors.Errorf(format, args...)}
	}

	for _, h := range s.patches.Prefixes {
		if ret := h.Method.ReturnType(); !ret.IsVoid() && ret.Kind != il.Bool {
			return fail(h, "a prefix must return void or bool, not `%s`", ret)
		}
	}

	for _, h := range s.patches.Postfixes {
		ret := h.Method.ReturnType()
		if ret.IsVoid() {
			continue
		}
		if !h.IsPassThrough() {
			return fail(h, "a postfix returning `%s` must take it as first parameter", ret)
		}
		if s.sig.returnType.IsVoid() {
			return fail(h, "a pass-through postfix cannot be applied to a method returning void")
		}
		if !il.AssignableTo(s.sig.returnType, h.Method.Params[0].Type) {
			return fail(h, "a result of type `%s` cannot be passed through `%s`", s.sig.returnType, ret)
		}
	}

	for _, h := range s.patches.Finalizers {
		if ret := h.Method.ReturnType(); !ret.IsVoid() && !il.AssignableTo(ret, il.ExceptionType) {
			return fail(h, "a finalizer must return void or an exception, not `%s`", ret)
		}
	}
	return nil
}

func (s *synthesis) emit() error {
	g := s.gen
	hasFinalizers := len(s.patches.Finalizers) > 0

	if s.patches.HasHooks() && s.original.Body == nil {
		return sqerrors.Wrapf(ErrMissingBody, "cannot apply hooks to `%s`", s.original)
	}

	s.declareLocals()

	if hasFinalizers {
		g.BeginExceptionBlock()
	}

	if err := s.emitPrefixes(); err != nil {
		return err
	}

	res, err := s.emitOriginal()
	if err != nil {
		return err
	}

	if s.slots.result != nil {
		g.EmitLocal(il.Stloc, s.slots.result)
	}
	if s.skip != nil {
		g.MarkLabel(s.skip)
	}

	if err := s.emitPostfixes(); err != nil {
		return err
	}

	// The returned value, if any, is on the stack. It is stored when it must
	// be reloaded under the buffer address or after the protected region.
	value := s.slots.result
	if hasFinalizers || s.sig.returnBuffer {
		if value == nil && !s.sig.returnType.IsVoid() {
			value = g.DeclareLocal("", s.sig.returnType, false)
		}
		if value != nil {
			g.EmitLocal(il.Stloc, value)
		}
	}
	if hasFinalizers {
		if err := s.emitFinalizers(); err != nil {
			return err
		}
	}
	switch {
	case s.sig.returnBuffer:
		g.EmitArg(il.Ldarg, s.sig.bufferArg())
		g.EmitLocal(il.Ldloc, value)
		g.EmitType(il.Stobj, s.sig.returnType)
	case hasFinalizers && value != nil:
		g.EmitLocal(il.Ldloc, value)
	}

	if hasFinalizers || !res.EndsWithReturn {
		g.Emit(il.Ret)
	}
	return nil
}

func (s *synthesis) emitPrefixes() error {
	for _, h := range s.patches.Prefixes {
		if err := s.emitHookCall(h); err != nil {
			return err
		}
		if h.Method.ReturnType().Kind == il.Bool {
			if s.skip == nil {
				s.skip = s.gen.DefineLabel("skip_original")
			}
			s.gen.EmitBranch(il.Brfalse, s.skip)
		}
	}
	return nil
}

func (s *synthesis) emitOriginal() (*bodycopier.Result, error) {
	var rewriters []bodycopier.Rewriter
	if s.sig.returnBuffer {
		rewriters = append(rewriters, bodycopier.ShiftArguments(s.sig.bufferArg()))
	}
	rewriters = append(rewriters, s.patches.Rewriters...)

	res, err := bodycopier.Copy(s.gen, s.original.Body, s.slots.original, bodycopier.Options{
		Rewriters:       rewriters,
		RedirectReturns: s.patches.HasHooks() || s.sig.returnBuffer,
		ReturnsValue:    !s.sig.returnType.IsVoid(),
	})
	if err != nil {
		return nil, sqerrors.Wrapf(err, "copying the body of `%s`", s.original)
	}
	return res, nil
}

// emitPostfixes calls the void postfixes, then threads the result through
// the pass-through postfixes. The result is left on the stack.
func (s *synthesis) emitPostfixes() error {
	var passThrough []*patch.Hook
	for _, h := range s.patches.Postfixes {
		if h.IsPassThrough() {
			passThrough = append(passThrough, h)
			continue
		}
		if err := s.emitHookCall(h); err != nil {
			return err
		}
	}

	if s.slots.result != nil {
		s.gen.EmitLocal(il.Ldloc, s.slots.result)
	}

	for _, h := range passThrough {
		if err := s.emitHookCall(h); err != nil {
			return err
		}
	}
	return nil
}
