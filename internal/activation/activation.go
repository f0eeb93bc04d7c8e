// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package activation eagerly activates synthesized methods so that they are
// executable before their first call. Activation is provided by the host
// execution environment through the Facility interface. Failing to activate
// is never an error for the caller: the method is then activated lazily by
// its first call.
package activation

import (
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/plog"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
	"github.com/sqreen/go-detour/internal/sqlib/sqsafe"
	"golang.org/x/xerrors"
)

// Facility eagerly activates methods.
type Facility interface {
	Activate(m *il.Method) error
}

// FacilityFunc adapts a function into a Facility.
type FacilityFunc func(m *il.Method) error

func (f FacilityFunc) Activate(m *il.Method) error { return f(m) }

// ErrUnavailable can be returned by a facility unavailable in the current
// environment.
var ErrUnavailable = xerrors.New("activation facility unavailable")

// ErrNoStrategy is returned when no strategy could activate the method.
var ErrNoStrategy = xerrors.New("no activation strategy succeeded")

// Strategies is a Facility trying each of its facilities in order until one
// succeeds. Errors and panics of a facility make it try the next one.
type Strategies []Facility

func (s Strategies) Activate(m *il.Method) error {
	var errs sqerrors.ErrorCollection
	for i, f := range s {
		if f == nil {
			continue
		}
		err := sqsafe.Call(func() error {
			return f.Activate(m)
		})
		if err == nil {
			return nil
		}
		errs.Add(sqerrors.Wrapf(err, "strategy %d", i))
	}
	if len(errs) == 0 {
		return ErrNoStrategy
	}
	// Matches ErrNoStrategy and the errors of every strategy.
	return append(sqerrors.ErrorCollection{ErrNoStrategy}, errs...)
}

// Eager activates `m` and returns true when it succeeded. Failures are
// logged at debug level.
func Eager(f Facility, m *il.Method, logger *plog.Logger) bool {
	if f == nil {
		return false
	}
	err := sqsafe.Call(func() error {
		return f.Activate(m)
	})
	if err != nil {
		if logger != nil {
			logger.Scope("activation").Debugf("`%s` left to lazy activation: %v", m, err)
		}
		return false
	}
	return true
}
