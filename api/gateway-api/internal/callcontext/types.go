// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import "time"

// Call context status constants.
const (
	StatusPending = "pending" // Inbound: created, waiting for media connection
	StatusQueued  = "queued"  // Outbound: created, waiting for provider to connect media
	StatusClaimed = "claimed" // Media connection established (WebSocket/room)
)

// Call direction constants.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallContext holds everything the bridge needs to personalize the agent on
// first contact. It bridges the gap between the HTTP call-setup request
// (inbound webhook or outbound initiation) and the media connection that
// follows, keyed by the provider's call identifier.
//
// The record is ephemeral: it is created at setup, claimed exactly once when
// the media stream starts, and deleted on every call termination path.
type CallContext struct {
	ContextID string `json:"contextId"`
	CallID    string `json:"callId"`
	Status    string `json:"status"`

	// AgentID selects the conversation on the agent provider;
	// AgentProvider selects the provider itself when it is not the default.
	AgentID       string `json:"agentId"`
	AgentProvider string `json:"agentProvider"`

	// DynamicVariables is the personalization payload handed to the agent's
	// initialization frame. Values are strings, booleans or numbers.
	DynamicVariables map[string]interface{} `json:"dynamicVariables"`

	Provider     string `json:"provider"`
	Direction    string `json:"direction"`
	CallerNumber string `json:"callerNumber"`
	CalleeNumber string `json:"calleeNumber"`
	FromNumber   string `json:"fromNumber"`

	CreatedDate time.Time `json:"createdDate"`
	UpdatedDate time.Time `json:"updatedDate"`
}

// IsPending returns true if the context has not yet been claimed.
func (cc *CallContext) IsPending() bool {
	return cc.Status == StatusPending
}

// IsClaimed returns true if the context has been claimed by a media connection.
func (cc *CallContext) IsClaimed() bool {
	return cc.Status == StatusClaimed
}
