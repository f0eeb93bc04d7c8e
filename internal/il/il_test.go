// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package il_test

import (
	"testing"

	"github.com/sqreen/go-detour/internal/il"
	"github.com/stretchr/testify/require"
)

func TestIdentical(t *testing.T) {
	point := il.NewStruct("Point", 8)
	require.True(t, il.Identical(il.Int32Type, il.Int32Type))
	require.False(t, il.Identical(il.Int32Type, il.Int64Type))
	require.True(t, il.Identical(il.ByRefTo(point), il.ByRefTo(point)))
	require.False(t, il.Identical(il.ByRefTo(point), il.PointerTo(point)))
	require.False(t, il.Identical(il.ByRefTo(point), point))
	require.False(t, il.Identical(nil, point))
}

func TestAssignableTo(t *testing.T) {
	custom := il.NewClass("CustomException", il.ExceptionType)
	require.True(t, il.AssignableTo(custom, il.ExceptionType))
	require.True(t, il.AssignableTo(custom, il.ObjectType))
	require.False(t, il.AssignableTo(il.ExceptionType, custom))
	require.False(t, il.AssignableTo(il.Int32Type, il.ObjectType))
}

func TestFields(t *testing.T) {
	base := il.NewClass("Base", il.ObjectType)
	inherited := base.AddField("inherited", il.Int32Type, false)
	derived := il.NewClass("Derived", base)
	own := derived.AddField("own", il.StringType, false)
	counter := derived.AddField("counter", il.Int64Type, true)

	require.Equal(t, own, derived.Field("own"))
	require.Equal(t, inherited, derived.Field("inherited"))
	require.Nil(t, derived.Field("missing"))

	require.Equal(t, own, derived.DeclaredField(0))
	require.Equal(t, counter, derived.DeclaredField(1))
	require.Nil(t, derived.DeclaredField(2))
	require.Nil(t, derived.DeclaredField(-1))
	require.Nil(t, base.DeclaredField(1))
	require.Equal(t, "Derived::own", own.String())
}

func TestLoadIndirect(t *testing.T) {
	for _, tc := range []struct {
		typ      *il.Type
		expected il.OpCode
	}{
		{il.Int8Type, il.LdindI1},
		{il.Uint8Type, il.LdindU1},
		{il.BoolType, il.LdindU1},
		{il.Int16Type, il.LdindI2},
		{il.Uint16Type, il.LdindU2},
		{il.CharType, il.LdindU2},
		{il.Int32Type, il.LdindI4},
		{il.NewEnum("Color"), il.LdindI4},
		{il.Uint32Type, il.LdindU4},
		{il.Int64Type, il.LdindI8},
		{il.Uint64Type, il.LdindI8},
		{il.IntType, il.LdindI},
		{il.Float32Type, il.LdindR4},
		{il.Float64Type, il.LdindR8},
		{il.NewStruct("Point", 8), il.Ldobj},
		{il.StringType, il.LdindRef},
	} {
		require.Equal(t, tc.expected, il.LoadIndirect(tc.typ), tc.typ.String())
	}
}

func TestMethodString(t *testing.T) {
	calc := il.NewClass("Calc", il.ObjectType)
	m := &il.Method{
		Name:          "Compute",
		DeclaringType: calc,
		Params: []*il.Param{
			{Name: "x", Type: il.Int32Type},
			{Name: "y", Type: il.ByRefTo(il.Int32Type), Out: true},
		},
		Return: il.Int32Type,
	}
	require.Equal(t, "int32 Calc::Compute(int32 x, int32& y)", m.String())
	require.Equal(t, 3, m.NumArgs())
	require.Equal(t, 1, m.ParamIndex("y"))
	require.Equal(t, -1, m.ParamIndex("z"))
	require.True(t, m.Params[1].IsByRef())
	require.True(t, m.HasToken())
}

func TestBodyString(t *testing.T) {
	end := il.NewLabel("end")
	body := &il.Body{
		Locals: []*il.LocalInfo{{Type: il.Int32Type, Name: "tmp"}},
		Code: []il.Instruction{
			il.I(il.Ldarg, 0),
			il.I(il.Brfalse, end),
			il.I(il.Ldstr, "yes"),
			il.I(il.Pop),
			il.I(il.Ret).WithLabels(end),
		},
	}
	require.Equal(t, `.local 0 int32 (tmp)
0000 ldarg 0
0001 brfalse end
0002 ldstr "yes"
0003 pop
0004 end: ret
`, body.String())
}
