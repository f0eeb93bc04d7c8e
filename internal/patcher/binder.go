// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher

import (
	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// emitHookCall loads the arguments of the hook and calls it. The first
// argument of pass-through hooks is expected to be already on the stack.
func (s *synthesis) emitHookCall(h *patch.Hook) error {
	for _, b := range h.Bindings {
		if b.Kind == patch.BindPassThrough {
			continue
		}
		if err := s.emitBinding(h, b); err != nil {
			return &HookError{Hook: h, Original: s.original, Err: sqerrors.Wrapf(err, "parameter `%s`", b.Param.Name)}
		}
	}
	s.gen.EmitCall(h.Method)
	return nil
}

func (s *synthesis) emitBinding(h *patch.Hook, b patch.Binding) error {
	g := s.gen
	switch b.Kind {
	case patch.BindOriginalMethod:
		if s.original.HasToken() {
			g.EmitToken(s.original)
		} else {
			g.Emit(il.Ldnull)
		}
		return nil

	case patch.BindInstance:
		return s.emitInstance(b)

	case patch.BindFieldByName, patch.BindFieldByIndex:
		return s.emitField(b)

	case patch.BindState:
		slot := s.slots.state[h.Group]
		if slot == nil {
			if b.ByRef() {
				g.Emit(il.Ldnull)
			} else {
				s.emitDefault(b.Param.Type)
			}
			return nil
		}
		s.emitSlot(slot, b.ByRef())
		return nil

	case patch.BindResult:
		ret := s.sig.returnType
		if ret.IsVoid() {
			return sqerrors.Errorf("`%s` cannot be bound: the method returns void", patch.ResultName)
		}
		if !il.AssignableTo(ret, b.Param.Type.ElementType()) {
			return sqerrors.Errorf("a result of type `%s` cannot be received as `%s`", ret, b.Param.Type)
		}
		s.emitSlot(s.slots.result, b.ByRef())
		return nil

	case patch.BindNamed:
		if slot, exists := s.slots.private[b.Name]; exists {
			s.emitSlot(slot, b.ByRef())
			return nil
		}
		i := s.original.ParamIndex(b.Name)
		if i < 0 {
			return sqerrors.Errorf("no parameter named `%s` in `%s`", b.Name, s.original)
		}
		s.emitParam(i, b)
		return nil

	case patch.BindArgIndex:
		if n := len(s.original.Params); b.Index >= n {
			return sqerrors.Errorf("parameter index %d out of range [0,%d)", b.Index, n)
		}
		s.emitParam(b.Index, b)
		return nil
	}
	return sqerrors.Errorf("unexpected %s binding", b.Kind)
}

func (s *synthesis) emitSlot(slot *emitter.Local, byRef bool) {
	if byRef {
		s.gen.EmitLocal(il.Ldloca, slot)
	} else {
		s.gen.EmitLocal(il.Ldloc, slot)
	}
}

// emitInstance loads the instance according to how it is passed to the
// synthesized method and how the hook expects it.
func (s *synthesis) emitInstance(b patch.Binding) error {
	g := s.gen
	if !s.sig.hasThis {
		g.Emit(il.Ldnull)
		return nil
	}
	switch site, hook := s.sig.thisByRef, b.ByRef(); {
	case !site && hook:
		g.EmitArg(il.Ldarga, 0)
	case site && !hook:
		g.EmitArg(il.Ldarg, 0)
		s.emitLoadIndirect(s.original.DeclaringType)
	default:
		g.EmitArg(il.Ldarg, 0)
	}
	return nil
}

func (s *synthesis) emitField(b patch.Binding) error {
	g := s.gen
	decl := s.original.DeclaringType
	var f *il.Field
	if decl != nil {
		if b.Kind == patch.BindFieldByIndex {
			f = decl.DeclaredField(b.Index)
		} else {
			f = decl.Field(b.Name)
		}
	}
	if f == nil {
		if b.Kind == patch.BindFieldByIndex {
			return sqerrors.Errorf("no field at index %d declared by type `%s`", b.Index, decl)
		}
		return sqerrors.Errorf("no field named `%s` in type `%s`", b.Name, decl)
	}

	if f.Static {
		if b.ByRef() {
			g.EmitField(il.Ldsflda, f)
		} else {
			g.EmitField(il.Ldsfld, f)
		}
		return nil
	}

	if !s.sig.hasThis {
		return sqerrors.Errorf("instance field `%s` cannot be accessed from static method `%s`", f, s.original)
	}
	g.EmitArg(il.Ldarg, 0)
	if b.ByRef() {
		g.EmitField(il.Ldflda, f)
	} else {
		g.EmitField(il.Ldfld, f)
	}
	return nil
}

// emitParam loads the i-th original parameter according to how it is passed
// to the synthesized method and how the hook expects it.
func (s *synthesis) emitParam(i int, b patch.Binding) {
	g := s.gen
	p := s.original.Params[i]
	arg := s.sig.argIndex(i)
	switch site, hook := p.IsByRef(), b.ByRef(); {
	case !site && hook:
		g.EmitArg(il.Ldarga, arg)
	case site && !hook:
		g.EmitArg(il.Ldarg, arg)
		s.emitLoadIndirect(p.Type.ElementType())
	default:
		g.EmitArg(il.Ldarg, arg)
	}
}

// emitLoadIndirect dereferences the address on top of the stack.
func (s *synthesis) emitLoadIndirect(t *il.Type) {
	if op := il.LoadIndirect(t); op == il.Ldobj {
		s.gen.EmitType(op, t)
	} else {
		s.gen.Emit(op)
	}
}
