// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqreen/go-detour/internal/il"
)

// Reserved hook parameter names.
const (
	// OriginalMethodName receives the descriptor of the original method.
	OriginalMethodName = "__originalMethod"
	// InstanceName receives the instance the original method is called on.
	InstanceName = "__instance"
	// StateName receives the state shared by the hooks of a same group.
	StateName = "__state"
	// ResultName receives the value returned by the original method.
	ResultName = "__result"
	// ExceptionName receives the exception captured by finalizers.
	ExceptionName = "__exception"
	// FieldPrefix prefixes the name or index of a field of the original
	// method's declaring type.
	FieldPrefix = "___"
	// ArgIndexPrefix prefixes the index of a parameter of the original method.
	ArgIndexPrefix = "__"
)

// BindingKind is the data source of a hook parameter.
type BindingKind uint8

const (
	BindOriginalMethod BindingKind = iota
	BindInstance
	BindFieldByName
	BindFieldByIndex
	BindState
	BindResult
	// BindNamed binds a private slot or else a parameter of the original
	// method having the same name.
	BindNamed
	BindArgIndex
	// BindPassThrough receives the running result of a postfix chain.
	BindPassThrough
)

var bindingKindNames = [...]string{
	BindOriginalMethod: "original method",
	BindInstance:       "instance",
	BindFieldByName:    "field",
	BindFieldByIndex:   "field index",
	BindState:          "state",
	BindResult:         "result",
	BindNamed:          "named",
	BindArgIndex:       "argument index",
	BindPassThrough:    "pass-through",
}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return fmt.Sprintf("BindingKind(%d)", k)
}

// Binding tells where the value of a hook parameter comes from.
type Binding struct {
	Kind BindingKind
	// Hook parameter and its position.
	Param    *il.Param
	Position int
	// Field or parameter name of BindFieldByName and BindNamed bindings.
	Name string
	// Field or parameter index of BindFieldByIndex and BindArgIndex
	// bindings.
	Index int
}

func (b Binding) String() string {
	switch b.Kind {
	case BindFieldByName, BindNamed:
		return fmt.Sprintf("%s `%s`", b.Kind, b.Name)
	case BindFieldByIndex, BindArgIndex:
		return fmt.Sprintf("%s %d", b.Kind, b.Index)
	default:
		return b.Kind.String()
	}
}

// ByRef returns true when the hook expects a reference to the data source.
func (b Binding) ByRef() bool {
	return b.Param.IsByRef()
}

// bind returns the binding of the i-th hook parameter according to its name.
func bind(i int, p *il.Param) Binding {
	b := Binding{Param: p, Position: i, Name: p.Name}
	switch name := p.Name; {
	case name == OriginalMethodName:
		b.Kind = BindOriginalMethod
	case name == InstanceName:
		b.Kind = BindInstance
	case strings.HasPrefix(name, FieldPrefix):
		field := strings.TrimPrefix(name, FieldPrefix)
		if n, ok := index(field); ok {
			b.Kind = BindFieldByIndex
			b.Index = n
		} else {
			b.Kind = BindFieldByName
			b.Name = field
		}
	case name == StateName:
		b.Kind = BindState
	case name == ResultName:
		b.Kind = BindResult
	case strings.HasPrefix(name, ArgIndexPrefix):
		if n, ok := index(strings.TrimPrefix(name, ArgIndexPrefix)); ok {
			b.Kind = BindArgIndex
			b.Index = n
		} else {
			b.Kind = BindNamed
		}
	default:
		b.Kind = BindNamed
	}
	return b
}

func index(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
