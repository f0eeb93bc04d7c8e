// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package vm is an execution environment of il methods. It interprets
// method bodies, calls native methods, activates methods by compiling them
// ahead of their first call, and dispatches the calls of an original method
// to its installed replacement.
//
// A Runtime can be used by concurrent goroutines. Replacements are installed
// atomically: a call either executes the original or a fully activated
// replacement.
package vm

import (
	"sync"
	"unsafe"

	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/plog"
	"github.com/sqreen/go-detour/internal/sqlib/sqatomic"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
	"github.com/sqreen/go-detour/internal/sqlib/sqsafe"
)

// NullReferenceExceptionType is the type of the exceptions thrown when
// dereferencing null.
var NullReferenceExceptionType = il.NewClass("NullReferenceException", il.ExceptionType)

type Options struct {
	// Logger defaults to a disabled logger.
	Logger *plog.Logger
	// Observer is notified of every method execution when not nil.
	Observer Observer
}

type Runtime struct {
	logger   *plog.Logger
	observer Observer

	// Map of methods to their *program.
	programs     sync.Map
	compilations sqatomic.Counter

	staticsLock sync.Mutex
	statics     map[*il.Field]*Cell

	installsLock sync.Mutex
	installs     map[*il.Method]*installation
}

// installation is the installation point of an original method. It is never
// removed once created so that calls can load it without locking the map.
type installation struct {
	// Pointer to the *il.Method replacing the original, nil when none.
	replacement sqatomic.Pointer
}

func New(opts Options) *Runtime {
	rt := &Runtime{
		logger:   opts.Logger,
		observer: opts.Observer,
		statics:  make(map[*il.Field]*Cell),
		installs: make(map[*il.Method]*installation),
	}
	if rt.logger == nil {
		rt.logger = plog.NewDisabledLogger()
	}
	rt.logger = rt.logger.Scope("vm")
	if rt.observer == nil {
		rt.observer = NoOpObserver{}
	}
	return rt
}

// Activate compiles the method so that its first call doesn't have to. It
// returns an error when the method cannot be executed.
func (rt *Runtime) Activate(m *il.Method) error {
	if m.Native != nil {
		return nil
	}
	_, err := rt.program(m)
	return err
}

// IsActivated returns true when the method was compiled.
func (rt *Runtime) IsActivated(m *il.Method) bool {
	_, exists := rt.programs.Load(m)
	return exists || m.Native != nil
}

// Compilations returns the number of method bodies compiled so far.
func (rt *Runtime) Compilations() uint32 {
	return rt.compilations.Load()
}

func (rt *Runtime) program(m *il.Method) (*program, error) {
	if p, exists := rt.programs.Load(m); exists {
		return p.(*program), nil
	}
	p, err := compile(m)
	if err != nil {
		return nil, sqerrors.Wrapf(err, "compiling `%s`", m)
	}
	actual, loaded := rt.programs.LoadOrStore(m, p)
	if !loaded {
		rt.compilations.Increment()
		rt.logger.Debugf("compiled `%s`", m)
	}
	return actual.(*program), nil
}

// Static returns the location of the static field `f`.
func (rt *Runtime) Static(f *il.Field) *Cell {
	rt.staticsLock.Lock()
	defer rt.staticsLock.Unlock()
	c, exists := rt.statics[f]
	if !exists {
		c = NewCell(f.Type)
		rt.statics[f] = c
	}
	return c
}

// Install atomically replaces `original` with `replacement` for every future
// call. The replacement must be a static method taking the instance, if any,
// as first parameter, followed by the return buffer when it has one.
func (rt *Runtime) Install(original, replacement *il.Method) error {
	expected := original.NumArgs()
	if replacement.ReturnBuffer {
		expected++
	}
	if !replacement.Static || len(replacement.Params) != expected {
		return sqerrors.Errorf("`%s` cannot replace `%s`: incompatible signatures", replacement, original)
	}
	rt.installation(original).replacement.Store(unsafe.Pointer(replacement))
	rt.logger.Debugf("installed `%s` in place of `%s`", replacement, original)
	return nil
}

// Uninstall restores the original implementation of `original`.
func (rt *Runtime) Uninstall(original *il.Method) {
	rt.installation(original).replacement.Store(nil)
	rt.logger.Debugf("uninstalled the replacement of `%s`", original)
}

// Replacement returns the method installed in place of `original`, nil if
// none.
func (rt *Runtime) Replacement(original *il.Method) *il.Method {
	rt.installsLock.Lock()
	inst := rt.installs[original]
	rt.installsLock.Unlock()
	if inst == nil {
		return nil
	}
	return (*il.Method)(inst.replacement.Load())
}

func (rt *Runtime) installation(original *il.Method) *installation {
	rt.installsLock.Lock()
	defer rt.installsLock.Unlock()
	inst, exists := rt.installs[original]
	if !exists {
		inst = &installation{}
		rt.installs[original] = inst
	}
	return inst
}

// Invoke calls `m` with the given arguments, the instance first for
// instance methods. A thrown exception is returned as an *Exception error.
func (rt *Runtime) Invoke(m *il.Method, args ...interface{}) (interface{}, error) {
	return rt.call(m, args)
}

func (rt *Runtime) call(m *il.Method, args []interface{}) (interface{}, error) {
	replacement := rt.Replacement(m)
	if replacement == nil {
		return rt.exec(m, args)
	}
	if !replacement.ReturnBuffer {
		return rt.exec(replacement, args)
	}

	buf := NewCell(m.ReturnType())
	at := 0
	if m.HasThis() {
		at = 1
	}
	withBuf := make([]interface{}, 0, len(args)+1)
	withBuf = append(withBuf, args[:at]...)
	withBuf = append(withBuf, buf)
	withBuf = append(withBuf, args[at:]...)
	if _, err := rt.exec(replacement, withBuf); err != nil {
		return nil, err
	}
	return buf.Load(), nil
}

func (rt *Runtime) exec(m *il.Method, args []interface{}) (result interface{}, err error) {
	types := argTypes(m)
	if len(args) != len(types) {
		return nil, sqerrors.Errorf("`%s` expects %d argument(s) but got %d", m, len(types), len(args))
	}
	cells := make([]*Cell, len(types))
	values := make([]interface{}, len(types))
	for i, t := range types {
		cells[i] = &Cell{typ: t}
		if err := cells[i].Store(args[i]); err != nil {
			return nil, sqerrors.Wrapf(err, "argument %d of `%s`", i, m)
		}
		values[i] = cells[i].v
	}

	f := &Frame{Method: m, Args: values}
	rt.observer.OnCall(f)
	defer func() {
		rt.observer.OnReturn(f, result, err)
	}()

	if m.Native != nil {
		err = sqsafe.Call(func() error {
			var err error
			result, err = m.Native(values)
			return err
		})
		if err != nil {
			return nil, nativeException(err)
		}
		return Convert(result, m.ReturnType())
	}

	p, err := rt.program(m)
	if err != nil {
		return nil, err
	}
	return rt.run(p, cells, f)
}
