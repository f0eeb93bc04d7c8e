// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package catalog stores the hooks and rewriters registered per original
// method. The index is an immutable radix tree keyed by the method full
// names, replaced on every modification so that readers never lock and
// always get a consistent snapshot.
package catalog

import (
	"strings"
	"sync"
	"sync/atomic"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sqreen/go-detour/internal/bodycopier"
	"github.com/sqreen/go-detour/internal/il"
	"github.com/sqreen/go-detour/internal/patch"
	"github.com/sqreen/go-detour/internal/sqlib/squnsafe"
)

// Entry is the patch set of an original method. Entries are never modified
// once stored.
type Entry struct {
	Original *il.Method
	Patches  *patch.Set
}

type Catalog struct {
	// Writers are serialized while readers load the current tree.
	lock sync.Mutex
	tree atomic.Value // *iradix.Tree
}

func New() *Catalog {
	c := &Catalog{}
	c.tree.Store(iradix.New())
	return c
}

// key returns the index key of `m`. Overloads have distinct keys.
func key(m *il.Method) []byte {
	return squnsafe.StringToBytes(m.FullName() + "(" + signature(m) + ")")
}

func signature(m *il.Method) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Type.String()
	}
	return strings.Join(params, ",")
}

func (c *Catalog) load() *iradix.Tree {
	return c.tree.Load().(*iradix.Tree)
}

// update applies `f` to a copy of the patch set of `original` and stores the
// result.
func (c *Catalog) update(original *il.Method, f func(*patch.Set)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	tree := c.load()
	k := key(original)
	set := &patch.Set{}
	if v, exists := tree.Get(k); exists {
		set = v.(*Entry).Patches.Clone()
	}
	f(set)
	tree, _, _ = tree.Insert(k, &Entry{Original: original, Patches: set})
	c.tree.Store(tree)
}

func (c *Catalog) AddPrefix(original *il.Method, h *patch.Hook) {
	c.update(original, func(s *patch.Set) { s.Prefixes = append(s.Prefixes, h) })
}

func (c *Catalog) AddPostfix(original *il.Method, h *patch.Hook) {
	c.update(original, func(s *patch.Set) { s.Postfixes = append(s.Postfixes, h) })
}

func (c *Catalog) AddFinalizer(original *il.Method, h *patch.Hook) {
	c.update(original, func(s *patch.Set) { s.Finalizers = append(s.Finalizers, h) })
}

func (c *Catalog) AddRewriter(original *il.Method, r bodycopier.Rewriter) {
	c.update(original, func(s *patch.Set) { s.Rewriters = append(s.Rewriters, r) })
}

// Add registers a hook according to its kind.
func (c *Catalog) Add(original *il.Method, h *patch.Hook) {
	switch h.Kind {
	case patch.Prefix:
		c.AddPrefix(original, h)
	case patch.Postfix:
		c.AddPostfix(original, h)
	case patch.Finalizer:
		c.AddFinalizer(original, h)
	}
}

// Get returns the patch set of `original`, nil when none. The returned set
// must not be modified.
func (c *Catalog) Get(original *il.Method) *patch.Set {
	v, exists := c.load().Get(key(original))
	if !exists {
		return nil
	}
	return v.(*Entry).Patches
}

// Remove removes every hook and rewriter of `original`. It returns false
// when there was none.
func (c *Catalog) Remove(original *il.Method) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	tree, _, removed := c.load().Delete(key(original))
	if removed {
		c.tree.Store(tree)
	}
	return removed
}

// Len returns the number of patched originals.
func (c *Catalog) Len() int {
	return c.load().Len()
}

// Type returns the entries of the originals declared by the type named
// `typeName`, in key order.
func (c *Catalog) Type(typeName string) []*Entry {
	return c.walk(typeName + "::")
}

// All returns every entry, in key order.
func (c *Catalog) All() []*Entry {
	return c.walk("")
}

func (c *Catalog) walk(prefix string) (entries []*Entry) {
	c.load().Root().WalkPrefix(squnsafe.StringToBytes(prefix), func(_ []byte, v interface{}) bool {
		entries = append(entries, v.(*Entry))
		return false
	})
	return entries
}
