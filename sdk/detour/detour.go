// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package detour replaces methods at run time with synthesized methods
// calling hooks around their original implementation.
//
// Hooks are registered per original method, then applied:
//
//	p, err := detour.New(runtime)
//	p.Prefix(original, checkArgs, "")
//	p.Postfix(original, scaleResult, "")
//	p.Finalizer(original, logErrors, "")
//	replacement, err := p.Apply(original)
//
// Applying synthesizes the replacement, activates it and installs it into
// the host so that every future call of the original executes it. Hook
// parameters are bound by name, see the package documentation of the hook
// model for the naming conventions.
package detour

import (
	"os"
	"sync"
	"time"

	"github.com/sqreen/go-detour/internal/activation"
	"github.com/sqreen/go-detour/internal/bodycopier"
	"github.com/sqreen/go-detour/internal/callconv"
	"github.com/sqreen/go-detour/internal/catalog"
	"github.com/sqreen/go-detour/internal/config"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/patcher"
	"github.com/sqreen/go-detour/internal/plog"
	"github.com/sqreen/go-detour/internal/sqlib/sqerrors"
	"github.com/sqreen/go-detour/internal/sqlib/sqtime"
)

type (
	Method      = il.Method
	Type        = il.Type
	Param       = il.Param
	Field       = il.Field
	Body        = il.Body
	Instruction = il.Instruction
	Rewriter    = bodycopier.Rewriter
	// RewriterFunc adapts a function into a Rewriter.
	RewriterFunc = bodycopier.RewriterFunc
)

// Host is the execution environment of the replacements.
type Host interface {
	activation.Facility
	// Install atomically replaces the original for every future call.
	Install(original, replacement *il.Method) error
	// Uninstall restores the original.
	Uninstall(original *il.Method)
}

// ErrMissingBody is returned when applying hooks to a method without body.
var ErrMissingBody = patcher.ErrMissingBody

// IsUnsupported returns true when the error tells that the original method
// cannot be replaced.
func IsUnsupported(err error) bool {
	return patcher.IsUnsupported(err)
}

type Patcher struct {
	host      Host
	activator activation.Facility
	catalog   *catalog.Catalog
	synth     *patcher.Patcher
	cfg       *config.Config
	logger    *plog.Logger

	// One lock per original so that an original is applied at most once at
	// a time.
	locksLock sync.Mutex
	locks     map[*il.Method]*sync.Mutex

	appliedLock sync.RWMutex
	applied     map[*il.Method]*il.Method

	synthesisTime sqtime.SharedStopWatch
}

type Option func(*Patcher)

// WithLogger sets the logger instead of the one created according to the
// configured log level.
func WithLogger(logger *plog.Logger) Option {
	return func(p *Patcher) { p.logger = logger }
}

// WithConfig sets the configuration instead of reading it from the
// environment.
func WithConfig(cfg *config.Config) Option {
	return func(p *Patcher) { p.cfg = cfg }
}

// WithActivation sets the activation strategies tried in order before the
// host's.
func WithActivation(strategies ...activation.Facility) Option {
	return func(p *Patcher) {
		p.activator = append(activation.Strategies(strategies), p.host)
	}
}

func New(host Host, opts ...Option) (*Patcher, error) {
	if host == nil {
		return nil, sqerrors.New("unexpected nil host")
	}
	p := &Patcher{
		host:      host,
		activator: activation.Strategies{host},
		catalog:   catalog.New(),
		locks:     make(map[*il.Method]*sync.Mutex),
		applied:   make(map[*il.Method]*il.Method),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.cfg == nil {
		logger := p.logger
		if logger == nil {
			logger = plog.NewLogger(plog.Error, os.Stderr, nil)
		}
		cfg, err := config.New(logger)
		if err != nil {
			return nil, err
		}
		p.cfg = cfg
	}
	if p.logger == nil {
		p.logger = plog.NewLogger(p.cfg.LogLevel(), os.Stderr, nil)
	}
	p.logger = p.logger.Scope("detour")

	p.synth = patcher.New(patcher.Options{
		Inspector: callconv.ABI{Name: "configured", MaxRegisterReturnSize: p.cfg.ReturnBufferMaxSize()},
		Logger:    p.logger,
		DumpIL:    p.cfg.DumpIL(),
	})
	return p, nil
}

// Prefix registers a hook called before `original`. The hook can return a
// bool to tell whether the original should be executed.
func (p *Patcher) Prefix(original, hook *il.Method, group string) {
	p.catalog.AddPrefix(original, patch.NewPrefix(group, hook))
}

// Postfix registers a hook called after `original`. A hook returning the
// type of its first parameter receives the result and replaces it.
func (p *Patcher) Postfix(original, hook *il.Method, group string) {
	p.catalog.AddPostfix(original, patch.NewPostfix(group, hook))
}

// Finalizer registers a hook called after `original`, even when it throws.
// A hook returning an exception replaces the thrown one.
func (p *Patcher) Finalizer(original, hook *il.Method, group string) {
	p.catalog.AddFinalizer(original, patch.NewFinalizer(group, hook))
}

// Rewriter registers a transformation of the body of `original`.
func (p *Patcher) Rewriter(original *il.Method, r Rewriter) {
	p.catalog.AddRewriter(original, r)
}

// Patched returns the originals having registered hooks or rewriters.
func (p *Patcher) Patched() []*il.Method {
	entries := p.catalog.All()
	originals := make([]*il.Method, len(entries))
	for i, e := range entries {
		originals[i] = e.Original
	}
	return originals
}

func (p *Patcher) lock(original *il.Method) *sync.Mutex {
	p.locksLock.Lock()
	defer p.locksLock.Unlock()
	l, exists := p.locks[original]
	if !exists {
		l = &sync.Mutex{}
		p.locks[original] = l
	}
	return l
}

// Apply synthesizes the replacement of `original` with its current hooks
// and rewriters, and installs it. Applying again replaces the previous
// replacement. The current replacement is left installed on error.
func (p *Patcher) Apply(original *il.Method) (*il.Method, error) {
	l := p.lock(original)
	l.Lock()
	defer l.Unlock()

	patches := p.catalog.Get(original)
	if patches == nil {
		return nil, sqerrors.Errorf("no hooks nor rewriters registered for `%s`", original)
	}

	m := p.synthesisTime.Start()
	replacement, err := p.synth.Synthesize(original, patches)
	dt := m.Stop()
	if err != nil {
		if IsUnsupported(err) {
			p.logger.Infof("skipping `%s`: %v", original, err)
		}
		return nil, err
	}

	if p.cfg.EagerActivation() {
		activation.Eager(p.activator, replacement, p.logger)
	}

	if err := p.host.Install(original, replacement); err != nil {
		return nil, sqerrors.Wrapf(err, "installing the replacement of `%s`", original)
	}

	p.appliedLock.Lock()
	p.applied[original] = replacement
	p.appliedLock.Unlock()
	p.logger.Debugf("`%s` replaced by `%s` (synthesized in %s)", original, replacement, dt)
	return replacement, nil
}

// Replacement returns the installed replacement of `original`, nil if none.
func (p *Patcher) Replacement(original *il.Method) *il.Method {
	p.appliedLock.RLock()
	defer p.appliedLock.RUnlock()
	return p.applied[original]
}

// SynthesisTime returns the time spent synthesizing replacements. Concurrent
// syntheses are counted once.
func (p *Patcher) SynthesisTime() time.Duration {
	return p.synthesisTime.Duration()
}

// Unpatch uninstalls the replacement of `original` and forgets its hooks and
// rewriters.
func (p *Patcher) Unpatch(original *il.Method) {
	l := p.lock(original)
	l.Lock()
	defer l.Unlock()

	p.host.Uninstall(original)
	p.catalog.Remove(original)
	p.appliedLock.Lock()
	delete(p.applied, original)
	p.appliedLock.Unlock()
	p.logger.Debugf("`%s` restored", original)
}
