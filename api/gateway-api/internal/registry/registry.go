// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// ErrNotRegistered is wrapped by Get with the list of available names.
var ErrNotRegistered = errors.New("not registered")

// Registry is a case-insensitive name to plugin table. Registrations happen
// once during startup; lookups are concurrent afterwards.
type Registry[T any] struct {
	mu      sync.RWMutex
	kind    string
	logger  commons.Logger
	entries map[string]T
}

// New returns an empty registry. kind names the plugin family in error
// messages and logs ("dialer", "agent").
func New[T any](logger commons.Logger, kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		logger:  logger,
		entries: make(map[string]T),
	}
}

// Register stores v under the lower-cased name, replacing and warning when
// the name is already taken.
func (r *Registry[T]) Register(name string, v T) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		r.logger.Warnw("overwriting registration",
			"kind", r.kind, "name", key)
	}
	r.entries[key] = v
}

// Get looks up a plugin case-insensitively. The error names every
// registered alternative.
func (r *Registry[T]) Get(name string) (T, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q %w, available: [%s]",
			r.kind, name, ErrNotRegistered, strings.Join(r.namesLocked(), ", "))
	}
	return v, nil
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear empties the registry.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]T)
}

func (r *Registry[T]) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
