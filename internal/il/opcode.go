// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package il

import "fmt"

// OpCode is a stack-machine operation.
type OpCode uint8

const (
	Nop OpCode = iota

	// Arguments, operand int
	Ldarg
	Ldarga
	Starg

	// Locals, operand int
	Ldloc
	Ldloca
	Stloc

	// Constants
	Ldnull
	LdcI4   // operand int32
	LdcI8   // operand int64
	LdcR4   // operand float32
	LdcR8   // operand float64
	Ldstr   // operand string
	Ldtoken // operand *Method

	// Typed dereferences of the address on top of the stack
	LdindI1
	LdindU1
	LdindI2
	LdindU2
	LdindI4
	LdindU4
	LdindI8
	LdindI
	LdindR4
	LdindR8
	LdindRef
	Ldobj // operand *Type

	// Stores through the address below the value
	Stind // operand *Type
	Stobj // operand *Type
	// Initobj zeroes the value at the address on top of the stack.
	Initobj // operand *Type

	// Fields, operand *Field
	Ldfld
	Ldflda
	Stfld
	Ldsfld
	Ldsflda
	Stsfld

	// Calls, operand *Method
	Call
	Ret

	// Control flow, operand *Label
	Br
	Brtrue
	Brfalse
	// Leave empties the evaluation stack and exits the enclosing protected
	// region or handler.
	Leave

	// Exceptions
	Throw
	Rethrow

	// Stack
	Pop
	Dup

	// Arithmetic on the two topmost values
	Add
	Sub
	Mul
	Ceq

	// Exception region pseudo-instructions
	BeginTry
	BeginCatch // operand *Type
	EndTry
)

var opNames = [...]string{
	Nop:        "nop",
	Ldarg:      "ldarg",
	Ldarga:     "ldarga",
	Starg:      "starg",
	Ldloc:      "ldloc",
	Ldloca:     "ldloca",
	Stloc:      "stloc",
	Ldnull:     "ldnull",
	LdcI4:      "ldc.i4",
	LdcI8:      "ldc.i8",
	LdcR4:      "ldc.r4",
	LdcR8:      "ldc.r8",
	Ldstr:      "ldstr",
	Ldtoken:    "ldtoken",
	LdindI1:    "ldind.i1",
	LdindU1:    "ldind.u1",
	LdindI2:    "ldind.i2",
	LdindU2:    "ldind.u2",
	LdindI4:    "ldind.i4",
	LdindU4:    "ldind.u4",
	LdindI8:    "ldind.i8",
	LdindI:     "ldind.i",
	LdindR4:    "ldind.r4",
	LdindR8:    "ldind.r8",
	LdindRef:   "ldind.ref",
	Ldobj:      "ldobj",
	Stind:      "stind",
	Stobj:      "stobj",
	Initobj:    "initobj",
	Ldfld:      "ldfld",
	Ldflda:     "ldflda",
	Stfld:      "stfld",
	Ldsfld:     "ldsfld",
	Ldsflda:    "ldsflda",
	Stsfld:     "stsfld",
	Call:       "call",
	Ret:        "ret",
	Br:         "br",
	Brtrue:     "brtrue",
	Brfalse:    "brfalse",
	Leave:      "leave",
	Throw:      "throw",
	Rethrow:    "rethrow",
	Pop:        "pop",
	Dup:        "dup",
	Add:        "add",
	Sub:        "sub",
	Mul:        "mul",
	Ceq:        "ceq",
	BeginTry:   ".try",
	BeginCatch: ".catch",
	EndTry:     ".endtry",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", op)
}

// IsBranch returns true for the operations taking a label operand.
func (op OpCode) IsBranch() bool {
	switch op {
	case Br, Brtrue, Brfalse, Leave:
		return true
	}
	return false
}

// IsLocalAccess returns true for the operations taking a local slot index.
func (op OpCode) IsLocalAccess() bool {
	switch op {
	case Ldloc, Ldloca, Stloc:
		return true
	}
	return false
}

// IsArgAccess returns true for the operations taking an argument index.
func (op OpCode) IsArgAccess() bool {
	switch op {
	case Ldarg, Ldarga, Starg:
		return true
	}
	return false
}

// IsRegion returns true for the exception region pseudo-instructions.
func (op OpCode) IsRegion() bool {
	switch op {
	case BeginTry, BeginCatch, EndTry:
		return true
	}
	return false
}

// LoadIndirect returns the typed dereference operation loading a value of type
// `t` from an address. Struct values are loaded with Ldobj, which then needs
// `t` as operand.
func LoadIndirect(t *Type) OpCode {
	switch t.Kind {
	case Int8:
		return LdindI1
	case Bool, Uint8:
		return LdindU1
	case Int16:
		return LdindI2
	case Char, Uint16:
		return LdindU2
	case Int32, Enum:
		return LdindI4
	case Uint32:
		return LdindU4
	case Int64, Uint64:
		return LdindI8
	case Int, Uint, Pointer:
		return LdindI
	case Float32:
		return LdindR4
	case Float64:
		return LdindR8
	case Struct:
		return Ldobj
	default:
		return LdindRef
	}
}
