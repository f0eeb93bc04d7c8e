// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package sqerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestWrap(t *testing.T) {
	sentinel := xerrors.New("sentinel")
	err := sqerrors.Wrapf(sentinel, "method `%s`", "Compute")
	require.True(t, xerrors.Is(err, sentinel))
	require.Equal(t, "method `Compute`: sentinel", err.Error())
	require.Contains(t, fmt.Sprintf("%+v", err), "TestWrap")
}

func TestStackTrace(t *testing.T) {
	require.Nil(t, sqerrors.StackTrace(errors.New("no stack")))
	require.Nil(t, sqerrors.StackTrace(nil))

	deep := sqerrors.Errorf("binding `%s`", "__state")
	err := sqerrors.Wrap(deep, "synthesizing")
	require.NotEmpty(t, sqerrors.StackTrace(err))
	// The deepest one
	require.Equal(t, sqerrors.StackTrace(deep), sqerrors.StackTrace(err))
}

func TestErrorCollection(t *testing.T) {
	var errs sqerrors.ErrorCollection
	require.NoError(t, errs.ToError())

	sentinel := xerrors.New("error 2")
	errs.Add(errors.New("error 1"))
	errs.Add(sqerrors.Wrap(sentinel, "strategy 1"))
	errs.Add(errors.New("error 3"))
	require.Equal(t, "multiple errors occurred: (error 1) error 1; (error 2) strategy 1: error 2; (error 3) error 3", errs.Error())

	err := errs.ToError()
	require.Error(t, err)
	require.True(t, xerrors.Is(err, sentinel))
	require.True(t, xerrors.Is(sqerrors.Wrap(err, "activating"), sentinel))
	require.False(t, xerrors.Is(err, xerrors.New("error 2")))
}
