// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

var (
	// ErrNotFound means no context exists for the call id.
	ErrNotFound = errors.New("call context not found")
	// ErrAlreadyClaimed means a media connection already consumed the context.
	ErrAlreadyClaimed = errors.New("call context already claimed")
)

// Store provides operations to save and retrieve call contexts.
//
// Each call id is written by exactly one setup handler and consumed by
// exactly one bridge, so the store stays a mutex-guarded in-process map. A
// distributed deployment would swap this for a small external key-value
// service without changing the interface.
type Store interface {
	// Save stores a call context under its CallID and returns the generated
	// contextId (UUID). Saving over an existing call id replaces it with a
	// warning.
	Save(ctx context.Context, cc *CallContext) (string, error)

	// Get retrieves a call context by call id without consuming it.
	Get(ctx context.Context, callID string) (*CallContext, error)

	// Claim atomically transitions a call context from "pending" or
	// "queued" to "claimed". Inbound contexts start as "pending"; outbound
	// contexts start as "queued". Only one media connection can win the
	// claim; a second start frame for the same call id gets
	// ErrAlreadyClaimed.
	Claim(ctx context.Context, callID string) (*CallContext, error)

	// Delete removes the context. Deleting an absent call id is a no-op so
	// the bridge's cleanup can run more than once.
	Delete(ctx context.Context, callID string) error
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*CallContext
	logger  commons.Logger
}

// NewStore creates an in-process call context store.
func NewStore(logger commons.Logger) Store {
	return &memoryStore{
		entries: make(map[string]*CallContext),
		logger:  logger,
	}
}

func (s *memoryStore) Save(ctx context.Context, cc *CallContext) (string, error) {
	if cc.CallID == "" {
		return "", fmt.Errorf("call context requires a call id")
	}
	if cc.ContextID == "" {
		cc.ContextID = uuid.New().String()
	}
	if cc.Status == "" {
		cc.Status = StatusPending
	}
	if cc.CreatedDate.IsZero() {
		cc.CreatedDate = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[cc.CallID]; exists {
		s.logger.Warnw("replacing call context", "callId", cc.CallID)
	}
	stored := *cc
	s.entries[cc.CallID] = &stored

	s.logger.Infof("saved call context: callId=%s, agent=%s, direction=%s",
		cc.CallID, cc.AgentID, cc.Direction)

	return cc.ContextID, nil
}

func (s *memoryStore) Get(ctx context.Context, callID string) (*CallContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.entries[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, callID)
	}
	out := *cc
	return &out, nil
}

// Claim only succeeds while the status is still "pending" or "queued"; the
// winner flips it to "claimed" under the lock.
func (s *memoryStore) Claim(ctx context.Context, callID string) (*CallContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.entries[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, callID)
	}
	if cc.Status != StatusPending && cc.Status != StatusQueued {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, callID)
	}
	cc.Status = StatusClaimed
	cc.UpdatedDate = time.Now()

	s.logger.Debugf("claimed call context: callId=%s, agent=%s", callID, cc.AgentID)

	out := *cc
	return &out, nil
}

func (s *memoryStore) Delete(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, callID)

	s.logger.Debugf("deleted call context: callId=%s", callID)
	return nil
}
