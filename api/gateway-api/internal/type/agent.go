// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "context"

// AgentStream is one live conversation with an agent provider. The stream
// owns its transport; closing it releases everything.
type AgentStream interface {
	// Initialize sends the provider's initialization frame. It must complete
	// before the first SendAudio and is called exactly once per stream.
	Initialize(ctx context.Context) error
	// SendAudio forwards one canonical PCM frame. Back-pressure is allowed,
	// silent drops are not.
	SendAudio(ctx context.Context, pcm []byte) error
	// Receive returns the event channel. Single consumer; the channel closes
	// at end of stream. Provider keep-alives are answered internally and
	// never appear here.
	Receive() <-chan AgentEvent
	// Close is idempotent.
	Close() error
}

// Agent is one registered conversational-AI integration.
type Agent interface {
	Name() string
	ValidateConfig() error
	// Connect performs the provider's out-of-band handshake and opens the
	// streaming transport for the given agent and personalization variables.
	Connect(ctx context.Context, agentID string, variables map[string]interface{}) (AgentStream, error)
}
