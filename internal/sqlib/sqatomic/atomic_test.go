// Copyright (c) 2016 - 2020 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package sqatomic_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/sqreen/go-detour/internal/sqlib/sqatomic"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	var c sqatomic.Counter
	require.Equal(t, uint32(0), c.Load())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	wg.Wait()
	require.Equal(t, uint32(100), c.Load())
}

func TestPointer(t *testing.T) {
	var p sqatomic.Pointer
	require.Nil(t, p.Load())

	a, b := 1, 2
	p.Store(unsafe.Pointer(&a))
	require.Equal(t, unsafe.Pointer(&a), p.Load())

	old := p.Swap(unsafe.Pointer(&b))
	require.Equal(t, unsafe.Pointer(&a), old)
	require.Equal(t, 2, *(*int)(p.Load()))

	p.Store(nil)
	require.Nil(t, p.Load())
}
