// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnsupportedType is returned when no adapter is registered for a tag.
var ErrUnsupportedType = errors.New("unsupported type")

// Registry maps tags to adapters. Adapters are meant to be registered while
// the process starts, before any schema is derived from it; lookups may then
// happen from any goroutine.
type Registry struct {
	mutex    sync.RWMutex
	adapters map[Tag]Adapter
}

// Default is the process wide registry used by schema.Derive.
var Default = NewRegistry()

// NewRegistry returns a registry holding only the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Tag]Adapter)}
	for _, a := range builtins() {
		r.adapters[a.Tag()] = a
	}
	return r
}

// Register adds an adapter under its tag, replacing any adapter previously
// registered for the same tag.
func (r *Registry) Register(a Adapter) {
	r.mutex.Lock()
	r.adapters[a.Tag()] = a
	r.mutex.Unlock()
}

// Resolve returns the adapter registered for tag.
func (r *Registry) Resolve(tag Tag) (Adapter, error) {
	r.mutex.RLock()
	a, ok := r.adapters[tag]
	r.mutex.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedType, "no adapter registered for %q", tag)
	}
	return a, nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []Tag {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tags := make([]Tag, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Register adds an adapter to the Default registry.
func Register(a Adapter) {
	Default.Register(a)
}

// Resolve looks tag up in the Default registry.
func Resolve(tag Tag) (Adapter, error) {
	return Default.Resolve(tag)
}
