// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package squnsafe

import (
	"reflect"
	"unsafe"
)

// StringToBytes returns the bytes of the given string without copying them.
// The empty string returns a nil slice. The returned slice shares the memory
// of the string and must never be modified. It is meant for read-only keys
// such as radix tree lookups.
func StringToBytes(s string) (b []byte) {
	if len(s) == 0 {
		return nil
	}
	str := (*reflect.StringHeader)(unsafe.Pointer(&s))
	slice := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	slice.Data = str.Data
	slice.Len = str.Len
	slice.Cap = str.Len
	return b
}
