// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package patcher synthesizes the replacement of an original method: a new
// method having the calling convention of the original, whose body splices
// the rewritten body of the original between calls to its prefix, postfix
// and finalizer hooks.
//
// The synthesized method is laid out as follows, the protected region only
// existing when there are finalizers:
//
//   zero-initialized locals
//   .try
//     prefixes         a prefix returning false branches to skip_original
//     original body    returns branch to the result capture
//     store result
//   skip_original:
//     void postfixes
//     load result
//     pass-through postfixes
//     store result
//     finalizers
//     finalizer state = ran normally
//     throw the exception a finalizer returned, if any
//   .catch
//     store exception
//     unless already finalized:
//       finalizers, each protected by its own region
//       finalizer state = ran on exception
//     rethrow, throw the replaced exception, or swallow it when null
//   .endtry
//   load result
//   ret
//
// A synthesis only reads the original and hook descriptors, so that
// replacements of different originals can be synthesized concurrently.
package patcher

import (
	"github.com/sqreen/go-detour/internal/callconv"
	"github.com/sqreen/go-detour/internal/emitter"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/plog"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
)

// Suffix of the names of synthesized methods.
const NameSuffix = "_Patch"

type Options struct {
	// Inspector tells the return convention of originals. callconv.Default
	// when nil.
	Inspector callconv.Inspector
	// Logger defaults to a disabled logger.
	Logger *plog.Logger
	// DumpIL logs the disassembly of every synthesized method at debug level.
	DumpIL bool
}

type Patcher struct {
	inspector callconv.Inspector
	logger    *plog.Logger
	dumpIL    bool
}

func New(opts Options) *Patcher {
	p := &Patcher{
		inspector: opts.Inspector,
		logger:    opts.Logger,
		dumpIL:    opts.DumpIL,
	}
	if p.inspector == nil {
		p.inspector = callconv.Default
	}
	if p.logger == nil {
		p.logger = plog.NewDisabledLogger()
	}
	p.logger = p.logger.Scope("patcher")
	return p
}

// Synthesize returns the replacement of `original` applying the given hooks
// and rewriters. Errors are either an *UnsupportedError, an *HookError or
// ErrMissingBody. No method is returned on error.
func (p *Patcher) Synthesize(original *il.Method, patches *patch.Set) (*il.Method, error) {
	if patches == nil {
		patches = &patch.Set{}
	}
	p.logger.Debugf("synthesizing `%s` with %d prefix(es), %d postfix(es), %d finalizer(s) and %d rewriter(s)",
		original, len(patches.Prefixes), len(patches.Postfixes), len(patches.Finalizers), len(patches.Rewriters))

	sig, err := newSignature(original, p.inspector.Inspect(original))
	if err != nil {
		return nil, err
	}

	s := &synthesis{
		original: original,
		patches:  patches,
		sig:      sig,
		gen:      emitter.New(),
	}
	if err := s.checkHooks(); err != nil {
		return nil, err
	}
	if err := s.emit(); err != nil {
		return nil, err
	}
	body, err := s.gen.Finish()
	if err != nil {
		return nil, sqerrors.Wrapf(err, "synthesizing `%s`", original)
	}

	m := &il.Method{
		Name:          original.Name + NameSuffix,
		Kind:          il.Dynamic,
		DeclaringType: original.DeclaringType,
		Static:        true,
		Params:        sig.params,
		Return:        sig.ret,
		Body:          body,
		ReturnBuffer:  sig.returnBuffer,
	}
	p.logger.Debugf("synthesized `%s` (%d locals, %d instructions)", m, len(body.Locals), len(body.Code))
	if p.dumpIL {
		p.logger.Debugf("`%s` body:\n%s", m, body)
	}
	return m, nil
}
