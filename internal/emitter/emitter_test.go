// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package emitter_test

import (
	"testing"

	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/stretchr/testify/require"
)

func TestGenerator(t *testing.T) {
	t.Run("labels bind to the next instruction", func(t *testing.T) {
		g := emitter.New()
		local := g.DeclareLocal("result", il.Int32Type, false)
		skip := g.DefineLabel("skip")
		g.EmitArg(il.Ldarg, 0)
		g.EmitBranch(il.Brfalse, skip)
		g.EmitI4(42)
		g.EmitLocal(il.Stloc, local)
		g.MarkLabel(skip)
		g.EmitLocal(il.Ldloc, local)
		g.Emit(il.Ret)

		body, err := g.Finish()
		require.NoError(t, err)
		require.Len(t, body.Code, 6)
		require.Equal(t, []*il.Label{skip}, body.Code[4].Labels)
		require.Equal(t, 0, body.Code[4].Int())
		require.Len(t, body.Locals, 1)
		require.Equal(t, "result", body.Locals[0].Name)
	})

	t.Run("trailing labels get a nop", func(t *testing.T) {
		g := emitter.New()
		end := g.DefineLabel("end")
		g.EmitBranch(il.Br, end)
		g.MarkLabel(end)
		body, err := g.Finish()
		require.NoError(t, err)
		require.Len(t, body.Code, 2)
		require.Equal(t, il.Nop, body.Code[1].Op)
		require.Equal(t, []*il.Label{end}, body.Code[1].Labels)
	})

	t.Run("labels must be marked", func(t *testing.T) {
		g := emitter.New()
		g.DefineLabel("forgotten")
		g.Emit(il.Ret)
		_, err := g.Finish()
		require.Error(t, err)
		require.Contains(t, err.Error(), "forgotten")
	})

	t.Run("labels must be marked once", func(t *testing.T) {
		g := emitter.New()
		l := g.DefineLabel("twice")
		g.MarkLabel(l)
		g.Emit(il.Nop)
		g.MarkLabel(l)
		g.Emit(il.Ret)
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("foreign labels are rejected", func(t *testing.T) {
		g := emitter.New()
		g.EmitBranch(il.Br, il.NewLabel("foreign"))
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("foreign locals are rejected", func(t *testing.T) {
		other := emitter.New()
		l := other.DeclareLocal("x", il.Int32Type, false)
		g := emitter.New()
		g.EmitLocal(il.Ldloc, l)
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("void locals are rejected", func(t *testing.T) {
		g := emitter.New()
		g.DeclareLocal("x", il.VoidType, false)
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("copied instructions", func(t *testing.T) {
		g := emitter.New()
		g.EmitInstruction(il.I(il.Ldstr, "hello"))
		g.EmitInstruction(il.I(il.Pop))
		require.Equal(t, 2, g.Len())
		require.NoError(t, g.Err())

		g.EmitInstruction(il.I(il.Ldloc, 0))
		require.Error(t, g.Err())
	})
}

func TestExceptionBlocks(t *testing.T) {
	t.Run("managed block", func(t *testing.T) {
		g := emitter.New()
		end := g.BeginExceptionBlock()
		g.EmitI4(1)
		g.Emit(il.Pop)
		g.BeginCatchBlock(il.ExceptionType)
		g.Emit(il.Pop)
		g.EndExceptionBlock()
		g.Emit(il.Ret)
		require.Equal(t, 0, g.Depth())

		body, err := g.Finish()
		require.NoError(t, err)
		ops := make([]il.OpCode, len(body.Code))
		for i := range body.Code {
			ops[i] = body.Code[i].Op
		}
		require.Equal(t, []il.OpCode{
			il.BeginTry, il.LdcI4, il.Pop, il.Leave,
			il.BeginCatch, il.Pop, il.Leave, il.EndTry,
			il.Ret,
		}, ops)
		require.Equal(t, []*il.Label{end}, body.Code[8].Labels)
		require.Equal(t, end, body.Code[3].Label())
		require.Equal(t, end, body.Code[6].Label())
	})

	t.Run("nested blocks", func(t *testing.T) {
		g := emitter.New()
		g.BeginExceptionBlock()
		g.BeginExceptionBlock()
		require.Equal(t, 2, g.Depth())
		g.BeginCatchBlock(il.ExceptionType)
		g.Emit(il.Pop)
		g.EndExceptionBlock()
		g.BeginCatchBlock(il.ExceptionType)
		g.Emit(il.Pop)
		g.EndExceptionBlock()
		g.Emit(il.Ret)
		_, err := g.Finish()
		require.NoError(t, err)
	})

	t.Run("unclosed block", func(t *testing.T) {
		g := emitter.New()
		g.BeginExceptionBlock()
		g.Emit(il.Ret)
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("catch without try", func(t *testing.T) {
		g := emitter.New()
		g.BeginCatchBlock(il.ExceptionType)
		_, err := g.Finish()
		require.Error(t, err)
	})

	t.Run("end without catch", func(t *testing.T) {
		g := emitter.New()
		g.OpenTry()
		g.CloseTry()
		_, err := g.Finish()
		require.Error(t, err)
	})
}
