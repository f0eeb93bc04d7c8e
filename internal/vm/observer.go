// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package vm

import "github.com/sqreen/go-detour/internal/il"

// Frame is the state of a method execution passed to observers. Its values
// are only valid during the observer call.
type Frame struct {
	Method *il.Method
	Args   []interface{}
	// Locals of the executed body, nil for native methods.
	Locals []interface{}
}

// Local returns the value of the first local named `name`.
func (f *Frame) Local(name string) (interface{}, bool) {
	if f.Method.Body == nil {
		return nil, false
	}
	for i, l := range f.Method.Body.Locals {
		if l.Name == name && i < len(f.Locals) {
			return f.Locals[i], true
		}
	}
	return nil, false
}

// Observer receives method execution events. Observer methods are called
// synchronously by the executing goroutine.
type Observer interface {
	// OnCall is called when entering a method, before its execution.
	OnCall(f *Frame)
	// OnReturn is called when leaving a method, with its result or the error
	// terminating it.
	OnReturn(f *Frame, result interface{}, err error)
}

// NoOpObserver can be embedded to implement only some of the Observer
// methods.
type NoOpObserver struct{}

func (NoOpObserver) OnCall(*Frame) {}

func (NoOpObserver) OnReturn(*Frame, interface{}, error) {}

var _ Observer = NoOpObserver{}
