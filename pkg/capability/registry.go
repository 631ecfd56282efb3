// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/crew/pkg/core"
)

// Registry indexes capabilities by name so crew definitions can refer to them.
type Registry struct {
	mu    sync.RWMutex
	items map[string]core.Capability
}

// NewRegistry returns a registry holding the given capabilities.
func NewRegistry(caps ...core.Capability) (*Registry, error) {
	r := &Registry{items: make(map[string]core.Capability, len(caps))}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c. Names must be non-empty and unique.
func (r *Registry) Register(c core.Capability) error {
	if c == nil {
		return fmt.Errorf("capability is nil")
	}
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return fmt.Errorf("capability name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.items[name] = c
	return nil
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (core.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[name]
	return c, ok
}

// Resolve returns the capabilities named, in the given order.
func (r *Registry) Resolve(names []string) ([]core.Capability, error) {
	out := make([]core.Capability, 0, len(names))
	for _, name := range names {
		c, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
