// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_elevenlabs_agent

import (
	"encoding/base64"
	"encoding/json"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

// ============================================================================
// Outgoing frames
// ============================================================================

type userAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type initializationMessage struct {
	Type                       string                      `json:"type"`
	ConversationConfigOverride *conversationConfigOverride `json:"conversation_config_override,omitempty"`
	DynamicVariables           map[string]interface{}      `json:"dynamic_variables,omitempty"`
}

type conversationConfigOverride struct {
	Agent agentOverride `json:"agent"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
	Language     string          `json:"language,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

// buildInitialization produces the conversation initiation frame. A config
// override is attached only when the variables carry a prompt or a first
// message; otherwise the agent's own configuration stands and the variables
// are purely for template substitution.
func buildInitialization(variables map[string]interface{}) initializationMessage {
	msg := initializationMessage{
		Type:             "conversation_initiation_client_data",
		DynamicVariables: variables,
	}

	prompt := stringVariable(variables, "prompt")
	firstMessage := stringVariable(variables, "first_message")
	if prompt == "" && firstMessage == "" {
		return msg
	}

	override := &conversationConfigOverride{
		Agent: agentOverride{
			FirstMessage: firstMessage,
			Language:     stringVariable(variables, "language"),
		},
	}
	if prompt != "" {
		override.Agent.Prompt = &promptOverride{Prompt: prompt}
	}
	msg.ConversationConfigOverride = override
	return msg
}

func stringVariable(variables map[string]interface{}, key string) string {
	if value, ok := variables[key].(string); ok {
		return value
	}
	return ""
}

// ============================================================================
// Incoming frames
// ============================================================================

type serverEvent struct {
	Type                   string                  `json:"type"`
	AudioEvent             *audioEvent             `json:"audio_event,omitempty"`
	AgentResponseEvent     *agentResponseEvent     `json:"agent_response_event,omitempty"`
	UserTranscriptionEvent *userTranscriptionEvent `json:"user_transcription_event,omitempty"`
	EventID                int                     `json:"event_id,omitempty"`
	Message                string                  `json:"message,omitempty"`
}

type audioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
}

type agentResponseEvent struct {
	Response string `json:"response"`
}

type userTranscriptionEvent struct {
	UserTranscription string `json:"user_transcription"`
}

// parseServerEvent maps one provider frame onto a canonical agent event.
// Pings surface as pong events so the reader can answer them; the reader
// never forwards those. Frames with no mapping come back as metadata.
func parseServerEvent(raw []byte) internal_type.AgentEvent {
	var evt serverEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return internal_type.AgentEvent{
			Type: internal_type.AgentEventError,
			Err:  "failed to decode agent frame: " + err.Error(),
		}
	}

	switch evt.Type {
	case "audio":
		if evt.AudioEvent == nil || evt.AudioEvent.AudioBase64 == "" {
			break
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.AudioEvent.AudioBase64)
		if err != nil {
			return internal_type.AgentEvent{
				Type: internal_type.AgentEventError,
				Err:  "failed to decode agent audio: " + err.Error(),
			}
		}
		return internal_type.AgentEvent{Type: internal_type.AgentEventAudio, Audio: pcm}

	case "agent_response_event":
		text := ""
		if evt.AgentResponseEvent != nil {
			text = evt.AgentResponseEvent.Response
		}
		return internal_type.AgentEvent{Type: internal_type.AgentEventText, Text: text}

	case "user_transcription_event":
		text := ""
		if evt.UserTranscriptionEvent != nil {
			text = evt.UserTranscriptionEvent.UserTranscription
		}
		return internal_type.AgentEvent{
			Type:   internal_type.AgentEventTranscription,
			Text:   text,
			Source: "user",
		}

	case "interruption_event":
		return internal_type.AgentEvent{Type: internal_type.AgentEventInterruption}

	case "ping_event":
		return internal_type.AgentEvent{Type: internal_type.AgentEventPong, EventID: evt.EventID}

	case "error":
		message := evt.Message
		if message == "" {
			message = "unknown agent error"
		}
		return internal_type.AgentEvent{Type: internal_type.AgentEventError, Err: message}
	}

	var metadata map[string]interface{}
	_ = json.Unmarshal(raw, &metadata)
	return internal_type.AgentEvent{Type: internal_type.AgentEventMetadata, Metadata: metadata}
}
