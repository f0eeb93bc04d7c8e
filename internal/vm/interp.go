// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package vm

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

type frame struct {
	rt     *Runtime
	p      *program
	args   []*Cell
	locals []*Cell
	stack  []interface{}
	// Exceptions being handled, by region index.
	caught map[int]*Object
}

// invalidProgram is raised by stack operations of invalid programs.
type invalidProgram struct{ err error }

func (fr *frame) push(v interface{}) {
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() interface{} {
	n := len(fr.stack)
	if n == 0 {
		panic(invalidProgram{sqerrors.New("evaluation stack underflow")})
	}
	v := fr.stack[n-1]
	fr.stack = fr.stack[:n-1]
	return v
}

func (fr *frame) popN(n int) []interface{} {
	if len(fr.stack) < n {
		panic(invalidProgram{sqerrors.Errorf("evaluation stack underflow: %d value(s) expected", n)})
	}
	values := make([]interface{}, n)
	copy(values, fr.stack[len(fr.stack)-n:])
	fr.stack = fr.stack[:len(fr.stack)-n]
	return values
}

func (fr *frame) popRef() (Ref, error) {
	switch v := fr.pop().(type) {
	case nil:
		return nil, nullReference()
	case Ref:
		return v, nil
	default:
		return nil, sqerrors.Errorf("expected an address but got `%T`", v)
	}
}

func nullReference() error {
	return &Exception{Value: NewException(NullReferenceExceptionType, "null reference")}
}

// copyValue returns the value as loaded from a location.
func copyValue(v interface{}) interface{} {
	if s, ok := v.(*Struct); ok {
		return s.Clone()
	}
	return v
}

func (rt *Runtime) run(p *program, args []*Cell, observed *Frame) (result interface{}, err error) {
	fr := &frame{
		rt:     rt,
		p:      p,
		args:   args,
		locals: make([]*Cell, len(p.method.Body.Locals)),
		caught: make(map[int]*Object),
	}
	for i, l := range p.method.Body.Locals {
		fr.locals[i] = NewCell(l.Type)
	}

	pc := 0
	defer func() {
		if r := recover(); r != nil {
			invalid, ok := r.(invalidProgram)
			if !ok {
				panic(r)
			}
			result, err = nil, sqerrors.Wrapf(invalid.err, "`%s`: instruction %d", p.method, pc)
		}
		observed.Locals = make([]interface{}, len(fr.locals))
		for i, l := range fr.locals {
			observed.Locals[i] = l.v
		}
	}()

	for pc < len(p.code) {
		next, done, err := fr.step(pc)
		if err != nil {
			exception, ok := err.(*Exception)
			if !ok {
				return nil, sqerrors.Wrapf(err, "`%s`: instruction %d `%s`", p.method, pc, &p.code[pc])
			}
			handler, found := fr.handler(pc, exception.Value)
			if !found {
				return nil, exception
			}
			pc = handler
			continue
		}
		if done {
			if p.method.ReturnType().IsVoid() {
				return nil, nil
			}
			return Convert(fr.pop(), p.method.ReturnType())
		}
		pc = next
	}
	return nil, sqerrors.Errorf("`%s`: execution ran past the end of the body", p.method)
}

// handler returns the handler address of the innermost region protecting
// `pc` and catching the exception.
func (fr *frame) handler(pc int, exception *Object) (int, bool) {
	for i := len(fr.p.regions) - 1; i >= 0; i-- {
		r := fr.p.regions[i]
		if r.protects(pc) && exception.Type.IsSubclassOf(r.catchType) {
			fr.stack = append(fr.stack[:0], exception)
			fr.caught[i] = exception
			return r.catch + 1, true
		}
	}
	return 0, false
}

// handled returns the exception handled by the innermost handler containing
// `pc`.
func (fr *frame) handled(pc int) *Object {
	for i := len(fr.p.regions) - 1; i >= 0; i-- {
		if fr.p.regions[i].handles(pc) {
			return fr.caught[i]
		}
	}
	return nil
}

var indirectTypes = map[il.OpCode]*il.Type{
	il.LdindI1: il.Int8Type,
	il.LdindU1: il.Uint8Type,
	il.LdindI2: il.Int16Type,
	il.LdindU2: il.Uint16Type,
	il.LdindI4: il.Int32Type,
	il.LdindU4: il.Uint32Type,
	il.LdindI8: il.Int64Type,
	il.LdindI:  il.IntType,
	il.LdindR4: il.Float32Type,
	il.LdindR8: il.Float64Type,
}

// step executes the instruction at `pc` and returns the address of the next
// one, or done when returning.
func (fr *frame) step(pc int) (next int, done bool, err error) {
	ins := &fr.p.code[pc]
	next = pc + 1

	switch op := ins.Op; op {
	case il.Nop, il.BeginTry, il.EndTry:

	case il.BeginCatch:
		return 0, false, sqerrors.New("handler entered without exception")

	case il.Ldarg:
		fr.push(copyValue(fr.args[ins.Int()].Load()))
	case il.Ldarga:
		fr.push(fr.args[ins.Int()])
	case il.Starg:
		err = fr.args[ins.Int()].Store(fr.pop())

	case il.Ldloc:
		fr.push(copyValue(fr.locals[ins.Int()].Load()))
	case il.Ldloca:
		fr.push(fr.locals[ins.Int()])
	case il.Stloc:
		err = fr.locals[ins.Int()].Store(fr.pop())

	case il.Ldnull:
		fr.push(nil)
	case il.LdcI4:
		var v interface{}
		v, err = Convert(ins.Operand, il.Int32Type)
		fr.push(v)
	case il.LdcI8:
		var v interface{}
		v, err = Convert(ins.Operand, il.Int64Type)
		fr.push(v)
	case il.LdcR4:
		var v interface{}
		v, err = Convert(ins.Operand, il.Float32Type)
		fr.push(v)
	case il.LdcR8:
		var v interface{}
		v, err = Convert(ins.Operand, il.Float64Type)
		fr.push(v)
	case il.Ldstr, il.Ldtoken:
		fr.push(ins.Operand)

	case il.LdindI1, il.LdindU1, il.LdindI2, il.LdindU2, il.LdindI4, il.LdindU4,
		il.LdindI8, il.LdindI, il.LdindR4, il.LdindR8:
		var ref Ref
		if ref, err = fr.popRef(); err != nil {
			break
		}
		var v interface{}
		v, err = Convert(ref.Load(), indirectTypes[op])
		fr.push(v)
	case il.LdindRef:
		var ref Ref
		if ref, err = fr.popRef(); err != nil {
			break
		}
		fr.push(ref.Load())
	case il.Ldobj:
		var ref Ref
		if ref, err = fr.popRef(); err != nil {
			break
		}
		var v interface{}
		v, err = Convert(ref.Load(), ins.Type())
		fr.push(v)

	case il.Stind, il.Stobj:
		v := fr.pop()
		var ref Ref
		if ref, err = fr.popRef(); err != nil {
			break
		}
		if t := ins.Type(); t != nil {
			if v, err = Convert(v, t); err != nil {
				break
			}
		}
		err = ref.Store(v)
	case il.Initobj:
		var ref Ref
		if ref, err = fr.popRef(); err != nil {
			break
		}
		err = ref.Store(Zero(ins.Type()))

	case il.Ldfld, il.Ldflda:
		var c *Cell
		if c, err = fieldCell(fr.pop(), ins.Field()); err != nil {
			break
		}
		if op == il.Ldflda {
			fr.push(c)
		} else {
			fr.push(copyValue(c.Load()))
		}
	case il.Stfld:
		v := fr.pop()
		var c *Cell
		if c, err = fieldCell(fr.pop(), ins.Field()); err != nil {
			break
		}
		err = c.Store(v)
	case il.Ldsfld:
		fr.push(copyValue(fr.rt.Static(ins.Field()).Load()))
	case il.Ldsflda:
		fr.push(fr.rt.Static(ins.Field()))
	case il.Stsfld:
		err = fr.rt.Static(ins.Field()).Store(fr.pop())

	case il.Call:
		m := ins.Method()
		args := fr.popN(m.NumArgs())
		var result interface{}
		if result, err = fr.rt.call(m, args); err != nil {
			break
		}
		if !m.ReturnType().IsVoid() {
			fr.push(result)
		}
	case il.Ret:
		return 0, true, nil

	case il.Br:
		next = fr.p.targets[ins.Label()]
	case il.Brtrue:
		if IsTrue(fr.pop()) {
			next = fr.p.targets[ins.Label()]
		}
	case il.Brfalse:
		if !IsTrue(fr.pop()) {
			next = fr.p.targets[ins.Label()]
		}
	case il.Leave:
		fr.stack = fr.stack[:0]
		next = fr.p.targets[ins.Label()]

	case il.Throw:
		switch v := fr.pop().(type) {
		case nil:
			err = nullReference()
		case *Object:
			if !v.Type.IsSubclassOf(il.ExceptionType) {
				return 0, false, sqerrors.Errorf("cannot throw `%s`", v.Type)
			}
			err = &Exception{Value: v}
		default:
			return 0, false, sqerrors.Errorf("cannot throw a value of type `%T`", v)
		}
	case il.Rethrow:
		exception := fr.handled(pc)
		if exception == nil {
			return 0, false, sqerrors.New("rethrow outside of a handler")
		}
		err = &Exception{Value: exception}

	case il.Pop:
		fr.pop()
	case il.Dup:
		v := fr.pop()
		fr.push(v)
		fr.push(copyValue(v))

	case il.Add, il.Sub, il.Mul, il.Ceq:
		b := fr.pop()
		a := fr.pop()
		var v interface{}
		v, err = arith(op, a, b)
		fr.push(v)

	default:
		return 0, false, sqerrors.Errorf("unexpected opcode `%s`", op)
	}
	return next, false, err
}

// fieldCell returns the location of the instance field `f` of an object, a
// struct value or a referenced struct.
func fieldCell(v interface{}, f *il.Field) (*Cell, error) {
	switch actual := v.(type) {
	case nil:
		return nil, nullReference()
	case *Object:
		return actual.Field(f)
	case *Struct:
		return actual.Field(f)
	case Ref:
		return fieldCell(actual.Load(), f)
	}
	return nil, sqerrors.Errorf("cannot access field `%s` of a value of type `%T`", f, v)
}

func arith(op il.OpCode, a, b interface{}) (interface{}, error) {
	if op == il.Ceq {
		return ceq(a, b), nil
	}

	switch x := a.(type) {
	case int32:
		if y, ok := b.(int32); ok {
			switch op {
			case il.Add:
				return x + y, nil
			case il.Sub:
				return x - y, nil
			default:
				return x * y, nil
			}
		}
	case float32, float64:
		x64, _ := toFloat64(x)
		y64, ok := toFloat64(b)
		if !ok {
			break
		}
		var r float64
		switch op {
		case il.Add:
			r = x64 + y64
		case il.Sub:
			r = x64 - y64
		default:
			r = x64 * y64
		}
		if _, ok := a.(float32); ok {
			return float32(r), nil
		}
		return r, nil
	}

	x, ok1 := toInt64(a)
	y, ok2 := toInt64(b)
	if !ok1 || !ok2 {
		return nil, sqerrors.Errorf("`%s` cannot be applied to `%T` and `%T`", op, a, b)
	}
	switch op {
	case il.Add:
		return x + y, nil
	case il.Sub:
		return x - y, nil
	default:
		return x * y, nil
	}
}

func ceq(a, b interface{}) int32 {
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok && x == y {
			return 1
		}
		return 0
	}
	if a == b {
		return 1
	}
	return 0
}
