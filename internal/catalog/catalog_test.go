// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package catalog_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sqreen/go-detour/internal/bodycopier"
	"github.com/sqreen/go-detour/internal/catalog"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/stretchr/testify/require"
)

var (
	calc  = il.NewClass("Calc", il.ObjectType)
	other = il.NewClass("Other", il.ObjectType)
	hooks = il.NewClass("Hooks", il.ObjectType)
)

func method(t *il.Type, name string, params ...*il.Type) *il.Method {
	m := &il.Method{Name: name, DeclaringType: t, Static: true}
	for i, p := range params {
		m.Params = append(m.Params, &il.Param{Name: fmt.Sprintf("p%d", i), Type: p})
	}
	return m
}

func TestCatalog(t *testing.T) {
	c := catalog.New()
	compute := method(calc, "Compute", il.Int32Type)
	computeOverload := method(calc, "Compute", il.Int64Type)
	otherCompute := method(other, "Compute")

	p1 := patch.NewPrefix("", method(hooks, "P1"))
	p2 := patch.NewPrefix("", method(hooks, "P2"))
	post := patch.NewPostfix("", method(hooks, "Post"))
	fin := patch.NewFinalizer("", method(hooks, "Fin"))
	rewriter := bodycopier.ShiftArguments(0)

	require.Nil(t, c.Get(compute))

	c.Add(compute, p1)
	snapshot := c.Get(compute)
	c.Add(compute, p2)
	c.Add(compute, post)
	c.Add(compute, fin)
	c.AddRewriter(compute, rewriter)
	c.AddPrefix(computeOverload, p1)
	c.AddPostfix(otherCompute, post)

	// Previous snapshots are left unchanged.
	require.Equal(t, []*patch.Hook{p1}, snapshot.Prefixes)

	set := c.Get(compute)
	require.Equal(t, []*patch.Hook{p1, p2}, set.Prefixes)
	require.Equal(t, []*patch.Hook{post}, set.Postfixes)
	require.Equal(t, []*patch.Hook{fin}, set.Finalizers)
	require.Len(t, set.Rewriters, 1)
	require.Equal(t, []*patch.Hook{p1}, c.Get(computeOverload).Prefixes)

	require.Equal(t, 3, c.Len())
	entries := c.Type("Calc")
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, calc, e.Original.DeclaringType)
	}
	require.Len(t, c.All(), 3)

	require.True(t, c.Remove(compute))
	require.False(t, c.Remove(compute))
	require.Nil(t, c.Get(compute))
	require.Equal(t, 2, c.Len())
}

func TestConcurrentRegistrations(t *testing.T) {
	c := catalog.New()
	compute := method(calc, "Compute")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.AddPrefix(compute, patch.NewPrefix("", method(hooks, fmt.Sprintf("P%d", i))))
			_ = c.Get(compute)
		}(i)
	}
	wg.Wait()
	require.Len(t, c.Get(compute).Prefixes, 50)
}
