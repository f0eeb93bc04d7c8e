// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package vm

import (
	"fmt"
	"math"

	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// Values are represented with the following Go types:
//
//   bool, char, 8 to 32-bit integers and enums   int32
//   64-bit and native integers                    int64
//   float32, float64                              float32, float64
//   structs                                       *Struct, copied on every load
//   classes                                       *Object, string, *il.Method or nil
//   managed references and pointers               Ref or nil

// Ref is a reference to a storage location.
type Ref interface {
	Load() interface{}
	Store(v interface{}) error
}

// Cell is a typed storage location. Stored values are converted to the
// location type.
type Cell struct {
	typ *il.Type
	v   interface{}
}

// NewCell returns a new location of type `t` holding the zero value of `t`.
func NewCell(t *il.Type) *Cell {
	return &Cell{typ: t, v: Zero(t)}
}

func (c *Cell) Type() *il.Type { return c.typ }

func (c *Cell) Load() interface{} { return c.v }

func (c *Cell) Store(v interface{}) error {
	v, err := Convert(v, c.typ)
	if err != nil {
		return err
	}
	c.v = v
	return nil
}

// Struct is a value of a Struct type.
type Struct struct {
	Type   *il.Type
	fields []*Cell
}

// NewStruct returns the zero value of the struct type `t`.
func NewStruct(t *il.Type) *Struct {
	s := &Struct{Type: t, fields: make([]*Cell, len(t.Fields))}
	for i, f := range t.Fields {
		if !f.Static {
			s.fields[i] = NewCell(f.Type)
		}
	}
	return s
}

// Clone returns a deep copy of the struct value.
func (s *Struct) Clone() *Struct {
	c := &Struct{Type: s.Type, fields: make([]*Cell, len(s.fields))}
	for i, f := range s.fields {
		if f == nil {
			continue
		}
		v := f.v
		if nested, ok := v.(*Struct); ok {
			v = nested.Clone()
		}
		c.fields[i] = &Cell{typ: f.typ, v: v}
	}
	return c
}

// Field returns the location of the instance field `f`.
func (s *Struct) Field(f *il.Field) (*Cell, error) {
	for i, candidate := range s.Type.Fields {
		if candidate == f && s.fields[i] != nil {
			return s.fields[i], nil
		}
	}
	return nil, sqerrors.Errorf("no instance field `%s` in struct `%s`", f, s.Type)
}

// Get returns the value of the field named `name`.
func (s *Struct) Get(name string) interface{} {
	return get(s.Type, name, s.Field)
}

// Set sets the value of the field named `name`.
func (s *Struct) Set(name string, v interface{}) error {
	return set(s.Type, name, v, s.Field)
}

// Object is an instance of a Class type.
type Object struct {
	Type   *il.Type
	fields map[*il.Field]*Cell
}

// NewObject returns a new instance of the class type `t` having zero field
// values.
func NewObject(t *il.Type) *Object {
	return &Object{Type: t, fields: make(map[*il.Field]*Cell)}
}

// Field returns the location of the instance field `f`.
func (o *Object) Field(f *il.Field) (*Cell, error) {
	if f.Static || !o.Type.IsSubclassOf(f.DeclaringType) {
		return nil, sqerrors.Errorf("no instance field `%s` in class `%s`", f, o.Type)
	}
	c, exists := o.fields[f]
	if !exists {
		c = NewCell(f.Type)
		o.fields[f] = c
	}
	return c, nil
}

// Get returns the value of the field named `name`.
func (o *Object) Get(name string) interface{} {
	return get(o.Type, name, o.Field)
}

// Set sets the value of the field named `name`.
func (o *Object) Set(name string, v interface{}) error {
	return set(o.Type, name, v, o.Field)
}

func (o *Object) String() string {
	if o.Type.IsSubclassOf(il.ExceptionType) {
		return fmt.Sprintf("%s: %v", o.Type, o.Get(il.ExceptionMessageField.Name))
	}
	return fmt.Sprintf("%s@%p", o.Type, o)
}

func get(t *il.Type, name string, field func(*il.Field) (*Cell, error)) interface{} {
	f := t.Field(name)
	if f == nil {
		return nil
	}
	c, err := field(f)
	if err != nil {
		return nil
	}
	return c.Load()
}

func set(t *il.Type, name string, v interface{}, field func(*il.Field) (*Cell, error)) error {
	f := t.Field(name)
	if f == nil {
		return sqerrors.Errorf("no field named `%s` in type `%s`", name, t)
	}
	c, err := field(f)
	if err != nil {
		return err
	}
	return c.Store(v)
}

// Zero returns the zero value of type `t`.
func Zero(t *il.Type) interface{} {
	switch t.Kind {
	case il.Int64, il.Uint64, il.Int, il.Uint:
		return int64(0)
	case il.Float32:
		return float32(0)
	case il.Float64:
		return float64(0)
	case il.Struct:
		return NewStruct(t)
	case il.Class, il.ByRef, il.Pointer, il.Void:
		return nil
	default:
		return int32(0)
	}
}

// Convert returns `v` converted to the representation of type `t`. Struct
// values are copied.
func Convert(v interface{}, t *il.Type) (interface{}, error) {
	switch t.Kind {
	case il.Void:
		return nil, nil

	case il.Bool, il.Char, il.Int8, il.Uint8, il.Int16, il.Uint16, il.Int32, il.Uint32, il.Enum:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		return narrow(n, t.Kind), nil

	case il.Int64, il.Uint64, il.Int, il.Uint:
		if n, ok := toInt64(v); ok {
			return n, nil
		}

	case il.Float32:
		if f, ok := toFloat64(v); ok {
			return float32(f), nil
		}

	case il.Float64:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}

	case il.Struct:
		switch actual := v.(type) {
		case nil:
			return NewStruct(t), nil
		case *Struct:
			if actual.Type == t {
				return actual.Clone(), nil
			}
		}

	case il.Class:
		switch actual := v.(type) {
		case nil:
			return nil, nil
		case *Object:
			if t == il.ObjectType || actual.Type.IsSubclassOf(t) {
				return actual, nil
			}
		case string:
			if t == il.StringType || t == il.ObjectType {
				return actual, nil
			}
		case *il.Method:
			if t == il.MethodBaseType || t == il.ObjectType {
				return actual, nil
			}
		}

	case il.ByRef, il.Pointer:
		switch actual := v.(type) {
		case nil:
			return nil, nil
		case Ref:
			return actual, nil
		}
	}
	return nil, sqerrors.Errorf("cannot convert value `%v` of type `%T` to `%s`", v, v, t)
}

// narrow truncates an integer to the width of the kind and sign-extends or
// zero-extends it back to 32 bits.
func narrow(n int64, k il.Kind) int32 {
	switch k {
	case il.Bool:
		if n != 0 {
			return 1
		}
		return 0
	case il.Int8:
		return int32(int8(n))
	case il.Uint8:
		return int32(uint8(n))
	case il.Int16:
		return int32(int16(n))
	case il.Uint16, il.Char:
		return int32(uint16(n))
	default:
		return int32(n)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uintptr:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return math.NaN(), false
}

// IsTrue returns the truth value of `v` as tested by conditional branches.
func IsTrue(v interface{}) bool {
	switch n := v.(type) {
	case nil:
		return false
	case float32:
		return n != 0
	case float64:
		return n != 0
	}
	if n, ok := toInt64(v); ok {
		return n != 0
	}
	return true
}
