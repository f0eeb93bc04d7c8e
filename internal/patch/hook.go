// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package patch describes the hook routines composed around an original
// method. Hook parameters are bound to their data sources once, when the hook
// is created, according to their names:
//
//   __originalMethod   the original method descriptor
//   __instance         the instance (null for static methods)
//   ___name, ___N      a field of the declaring type, by name or index
//   __state            the state shared by the hooks of the same group
//   __result           the value returned by the original method
//   __exception        the captured exception (finalizers)
//   __N                the original parameter at index N
//   name               the original parameter with the same name
//
// Parameters expecting a reference (ByRef type or out) receive the address
// of the data source instead of its value.
package patch

import (
	"fmt"

	"github.com/sqreen/go-detour/internal/bodycopier"
	"github.com/sqreen/go-detour/internal/il"
)

// Kind is the category of a hook.
type Kind uint8

const (
	// Prefix hooks run before the original and can skip it by returning false.
	Prefix Kind = iota
	// Postfix hooks run after the original and can replace its result.
	Postfix
	// Finalizer hooks run after the original even when it throws, and can
	// replace the thrown exception.
	Finalizer
)

func (k Kind) String() string {
	switch k {
	case Prefix:
		return "prefix"
	case Postfix:
		return "postfix"
	case Finalizer:
		return "finalizer"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Hook is a hook routine along with the bindings of its parameters.
type Hook struct {
	Kind   Kind
	Method *il.Method
	// Group identifies the hooks sharing the same __state slot.
	Group    string
	Bindings []Binding
}

// New returns the hook calling `m`. The hook belongs to the group `group`,
// which defaults to the declaring type of `m`.
func New(kind Kind, group string, m *il.Method) *Hook {
	if group == "" && m.DeclaringType != nil {
		group = m.DeclaringType.Name
	}
	h := &Hook{
		Kind:     kind,
		Method:   m,
		Group:    group,
		Bindings: make([]Binding, len(m.Params)),
	}
	for i, p := range m.Params {
		h.Bindings[i] = bind(i, p)
	}
	if kind == Postfix && h.IsPassThrough() {
		h.Bindings[0].Kind = BindPassThrough
	}
	return h
}

// NewPrefix returns a new prefix hook.
func NewPrefix(group string, m *il.Method) *Hook { return New(Prefix, group, m) }

// NewPostfix returns a new postfix hook.
func NewPostfix(group string, m *il.Method) *Hook { return New(Postfix, group, m) }

// NewFinalizer returns a new finalizer hook.
func NewFinalizer(group string, m *il.Method) *Hook { return New(Finalizer, group, m) }

// IsPassThrough returns true when the hook returns a value of the type of its
// first parameter.
func (h *Hook) IsPassThrough() bool {
	ret := h.Method.ReturnType()
	return !ret.IsVoid() && len(h.Method.Params) > 0 && il.Identical(ret, h.Method.Params[0].Type)
}

// DeclaresState returns the __state parameter of the hook, if any.
func (h *Hook) DeclaresState() *il.Param {
	for _, b := range h.Bindings {
		if b.Kind == BindState {
			return b.Param
		}
	}
	return nil
}

func (h *Hook) String() string {
	return fmt.Sprintf("%s %s", h.Kind, h.Method.FullName())
}

// Set is the ordered list of hooks and rewriters applied to an original.
type Set struct {
	Prefixes   []*Hook
	Postfixes  []*Hook
	Finalizers []*Hook
	Rewriters  []bodycopier.Rewriter
}

// HasHooks returns true when the set has at least one prefix, postfix or
// finalizer.
func (s *Set) HasHooks() bool {
	return len(s.Prefixes)+len(s.Postfixes)+len(s.Finalizers) > 0
}

// Hooks returns every hook of the set, prefixes first, then postfixes and
// finalizers.
func (s *Set) Hooks() []*Hook {
	hooks := make([]*Hook, 0, len(s.Prefixes)+len(s.Postfixes)+len(s.Finalizers))
	hooks = append(hooks, s.Prefixes...)
	hooks = append(hooks, s.Postfixes...)
	return append(hooks, s.Finalizers...)
}

// Clone returns a copy of the set whose lists can be modified independently.
func (s *Set) Clone() *Set {
	return &Set{
		Prefixes:   append([]*Hook(nil), s.Prefixes...),
		Postfixes:  append([]*Hook(nil), s.Postfixes...),
		Finalizers: append([]*Hook(nil), s.Finalizers...),
		Rewriters:  append([]bodycopier.Rewriter(nil), s.Rewriters...),
	}
}
