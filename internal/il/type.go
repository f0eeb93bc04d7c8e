// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package il describes methods and their instruction streams: the types,
// fields and parameters of method descriptors, the stack-machine opcodes and
// the instructions synthesized methods are made of.
//
// Descriptors are built once and then only read, so they can be shared by
// concurrent syntheses.
package il

import "fmt"

// Kind is the kind of a type.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Char
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Int
	Uint
	Float32
	Float64
	// Enum is an enumeration whose underlying type is a 32-bit integer.
	Enum
	// Struct is a user-defined value type.
	Struct
	// Class is a reference type.
	Class
	// Pointer is an unmanaged pointer.
	Pointer
	// ByRef is a managed reference to a storage location.
	ByRef
)

var kindNames = [...]string{
	Void:    "void",
	Bool:    "bool",
	Char:    "char",
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Int:     "int",
	Uint:    "uint",
	Float32: "float32",
	Float64: "float64",
	Enum:    "enum",
	Struct:  "struct",
	Class:   "class",
	Pointer: "pointer",
	ByRef:   "byref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Type describes a type. Named types are compared by identity while pointer
// and reference types are compared structurally (see Identical()).
type Type struct {
	Name string
	Kind Kind
	// Element type of Pointer and ByRef types.
	Elem *Type
	// Base class of Class types.
	Base *Type
	// Size in bytes of Struct types, as laid out by the host ABI.
	Size int
	// Fields declared by this type, in declaration order.
	Fields []*Field
}

// Field is a field declared by a Struct or Class type.
type Field struct {
	Name          string
	Type          *Type
	Static        bool
	DeclaringType *Type
}

func (f *Field) String() string {
	return fmt.Sprintf("%s::%s", f.DeclaringType, f.Name)
}

// Builtin types.
var (
	VoidType    = &Type{Name: "void", Kind: Void}
	BoolType    = &Type{Name: "bool", Kind: Bool}
	CharType    = &Type{Name: "char", Kind: Char}
	Int8Type    = &Type{Name: "int8", Kind: Int8}
	Uint8Type   = &Type{Name: "uint8", Kind: Uint8}
	Int16Type   = &Type{Name: "int16", Kind: Int16}
	Uint16Type  = &Type{Name: "uint16", Kind: Uint16}
	Int32Type   = &Type{Name: "int32", Kind: Int32}
	Uint32Type  = &Type{Name: "uint32", Kind: Uint32}
	Int64Type   = &Type{Name: "int64", Kind: Int64}
	Uint64Type  = &Type{Name: "uint64", Kind: Uint64}
	IntType     = &Type{Name: "int", Kind: Int}
	UintType    = &Type{Name: "uint", Kind: Uint}
	Float32Type = &Type{Name: "float32", Kind: Float32}
	Float64Type = &Type{Name: "float64", Kind: Float64}

	ObjectType = &Type{Name: "object", Kind: Class}
	StringType = &Type{Name: "string", Kind: Class, Base: ObjectType}
	// MethodBaseType is the type of method descriptor tokens.
	MethodBaseType = &Type{Name: "MethodBase", Kind: Class, Base: ObjectType}
	// ExceptionType is the root type of every thrown value.
	ExceptionType = NewClass("Exception", ObjectType)
	// ExceptionMessageField is the message of an exception.
	ExceptionMessageField = ExceptionType.AddField("Message", StringType, false)
)

// NewClass returns a new reference type deriving from `base`.
func NewClass(name string, base *Type) *Type {
	return &Type{Name: name, Kind: Class, Base: base}
}

// NewStruct returns a new value type of `size` bytes.
func NewStruct(name string, size int) *Type {
	return &Type{Name: name, Kind: Struct, Size: size}
}

// NewEnum returns a new enumeration type.
func NewEnum(name string) *Type {
	return &Type{Name: name, Kind: Enum}
}

// AddField declares a new field. Types must be fully declared before being
// used by any synthesis.
func (t *Type) AddField(name string, typ *Type, static bool) *Field {
	f := &Field{Name: name, Type: typ, Static: static, DeclaringType: t}
	t.Fields = append(t.Fields, f)
	return f
}

// ByRefTo returns the managed reference type to `t`.
func ByRefTo(t *Type) *Type {
	return &Type{Name: t.Name + "&", Kind: ByRef, Elem: t}
}

// PointerTo returns the unmanaged pointer type to `t`.
func PointerTo(t *Type) *Type {
	return &Type{Name: t.Name + "*", Kind: Pointer, Elem: t}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

func (t *Type) IsByRef() bool { return t.Kind == ByRef }

func (t *Type) IsVoid() bool { return t == nil || t.Kind == Void }

// IsValueType returns true when values of type `t` are copied on assignment.
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case Class, ByRef, Void:
		return false
	default:
		return true
	}
}

// ElementType returns the referenced type when `t` is a reference, `t`
// otherwise.
func (t *Type) ElementType() *Type {
	if t.Kind == ByRef {
		return t.Elem
	}
	return t
}

// IsSubclassOf returns true when `t` derives from `base`, or is `base`.
func (t *Type) IsSubclassOf(base *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == base {
			return true
		}
	}
	return false
}

// Field returns the field named `name` declared by `t` or by one of its base
// types.
func (t *Type) Field(name string) *Field {
	for c := t; c != nil; c = c.Base {
		for _, f := range c.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// DeclaredField returns the i-th field declared by `t` itself. Inherited
// fields are never returned.
func (t *Type) DeclaredField(i int) *Field {
	if i < 0 || i >= len(t.Fields) {
		return nil
	}
	return t.Fields[i]
}

// Identical returns true when both types denote the same type.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch a.Kind {
	case ByRef, Pointer:
		return a.Kind == b.Kind && Identical(a.Elem, b.Elem)
	}
	return false
}

// AssignableTo returns true when a value of type `src` can be stored into a
// location of type `dst`.
func AssignableTo(src, dst *Type) bool {
	if Identical(src, dst) {
		return true
	}
	if src == nil || dst == nil {
		return false
	}
	if src.Kind == Class && dst.Kind == Class {
		return src.IsSubclassOf(dst)
	}
	return false
}
