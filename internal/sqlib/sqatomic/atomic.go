// Copyright (c) 2016 - 2020 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package sqatomic provides value types whose every access is atomic.
package sqatomic

import (
	"sync/atomic"
	"unsafe"
)

// Counter is a uint32 counter.
type Counter uint32

func (c *Counter) Load() uint32 {
	return atomic.LoadUint32((*uint32)(c))
}

// Increment adds one to the counter and returns the new value.
func (c *Counter) Increment() uint32 {
	return atomic.AddUint32((*uint32)(c), 1)
}

// Pointer is an untyped pointer. The zero value is a nil pointer.
type Pointer struct {
	p unsafe.Pointer
}

func (p *Pointer) Load() unsafe.Pointer {
	return atomic.LoadPointer(&p.p)
}

func (p *Pointer) Store(v unsafe.Pointer) {
	atomic.StorePointer(&p.p, v)
}

// Swap stores `v` and returns the previous pointer.
func (p *Pointer) Swap(v unsafe.Pointer) (old unsafe.Pointer) {
	return atomic.SwapPointer(&p.p, v)
}
