// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patcher_test

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/patcher"
	"github.com/sqreen/go-detour/internal/vm"
)

var (
	calcType  = il.NewClass("Calc", il.ObjectType)
	callsFld  = calcType.AddField("calls", il.Int32Type, true)
	totalFld  = calcType.AddField("total", il.Int32Type, false)
	hooksType = il.NewClass("Hooks", il.ObjectType)

	failureType     = il.NewClass("Failure", il.ExceptionType)
	replacementType = il.NewClass("Replacement", il.ExceptionType)

	// Native method throwing a Failure exception.
	fail = &il.Method{
		Name:          "Fail",
		DeclaringType: calcType,
		Static:        true,
		Native: func([]interface{}) (interface{}, error) {
			return nil, vm.Throw(vm.NewException(failureType, "failure"))
		},
	}
)

func param(name string, t *il.Type) *il.Param {
	return &il.Param{Name: name, Type: t}
}

// compute returns `static int32 Calc::Compute(int32 x)` counting its calls
// and returning x*x.
func compute() *il.Method {
	return &il.Method{
		Name:          "Compute",
		DeclaringType: calcType,
		Static:        true,
		Params:        []*il.Param{param("x", il.Int32Type)},
		Return:        il.Int32Type,
		Body: &il.Body{Code: []il.Instruction{
			il.I(il.Ldsfld, callsFld),
			il.I(il.LdcI4, int32(1)),
			il.I(il.Add),
			il.I(il.Stsfld, callsFld),
			il.I(il.Ldarg, 0),
			il.I(il.Ldarg, 0),
			il.I(il.Mul),
			il.I(il.Ret),
		}},
	}
}

// constant returns `static int32 Calc::Constant()` returning `v`.
func constant(v int32) *il.Method {
	return &il.Method{
		Name:          "Constant",
		DeclaringType: calcType,
		Static:        true,
		Return:        il.Int32Type,
		Body: &il.Body{Code: []il.Instruction{
			il.I(il.LdcI4, v),
			il.I(il.Ret),
		}},
	}
}

// throwing returns `static int32 Calc::Throwing(bool throw)` which throws a
// Failure when `throw` is true and returns 1 otherwise.
func throwing() *il.Method {
	ok := il.NewLabel("ok")
	return &il.Method{
		Name:          "Throwing",
		DeclaringType: calcType,
		Static:        true,
		Params:        []*il.Param{param("throw", il.BoolType)},
		Return:        il.Int32Type,
		Body: &il.Body{Code: []il.Instruction{
			il.I(il.Ldarg, 0),
			il.I(il.Brfalse, ok),
			il.I(il.Call, fail),
			il.I(il.LdcI4, int32(1)).WithLabels(ok),
			il.I(il.Ret),
		}},
	}
}

// hook returns a native hook method declared by the Hooks type.
func hook(name string, ret *il.Type, f il.NativeFunc, params ...*il.Param) *il.Method {
	return &il.Method{
		Name:          name,
		DeclaringType: hooksType,
		Static:        true,
		Params:        params,
		Return:        ret,
		Native:        f,
	}
}

// apply synthesizes the replacement of `original` and installs it into a new
// runtime.
func apply(original *il.Method, set *patch.Set, opts ...vm.Options) (*vm.Runtime, *il.Method, error) {
	m, err := patcher.New(patcher.Options{}).Synthesize(original, set)
	if err != nil {
		return nil, nil, err
	}
	var o vm.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	rt := vm.New(o)
	if err := rt.Activate(m); err != nil {
		return nil, nil, err
	}
	if err := rt.Install(original, m); err != nil {
		return nil, nil, err
	}
	return rt, m, nil
}

// finalizerState records the finalizer state of the synthesized methods
// returning.
type finalizerState struct {
	vm.NoOpObserver
	states []patcher.FinalizerState
}

func (o *finalizerState) OnReturn(f *vm.Frame, _ interface{}, _ error) {
	if v, found := f.Local(patcher.FinalizerStateSlot); found {
		o.states = append(o.states, patcher.FinalizerState(v.(int32)))
	}
}
