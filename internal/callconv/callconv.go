// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package callconv tells how methods return their values on the host
// platform.
package callconv

import (
	"github.com/sqreen/go-detour/internal/il"
)

// Convention is the return convention of a method.
type Convention struct {
	// ReturnBuffer is true when the return value is written through a hidden
	// pointer argument provided by the caller.
	ReturnBuffer bool
	// ReturnType is the type of the returned value, whatever the way it is
	// returned.
	ReturnType *il.Type
}

// Inspector tells the return convention of methods.
type Inspector interface {
	Inspect(m *il.Method) Convention
}

// ABI is an Inspector for platforms returning value types larger than
// MaxRegisterReturnSize through a return buffer.
type ABI struct {
	Name string
	// Size in bytes of the largest value type returned in registers.
	MaxRegisterReturnSize int
}

// Known ABIs.
var (
	SystemVAMD64 = ABI{Name: "sysv-amd64", MaxRegisterReturnSize: 16}
	WindowsAMD64 = ABI{Name: "win-amd64", MaxRegisterReturnSize: 8}
	ARM64        = ABI{Name: "arm64", MaxRegisterReturnSize: 16}
)

// Default is the ABI used when none is configured.
var Default Inspector = SystemVAMD64

func (a ABI) Inspect(m *il.Method) Convention {
	ret := m.ReturnType()
	return Convention{
		ReturnBuffer: ret.Kind == il.Struct && ret.Size > a.MaxRegisterReturnSize,
		ReturnType:   ret,
	}
}
