// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

// AgentSampleRate is the canonical audio contract: every byte of audio
// crossing the bridge is 16-bit signed little-endian PCM, mono, at this
// rate. Codecs live at the plugin boundaries only.
const AgentSampleRate = 16000

type DialerEventType string

const (
	DialerEventStart   DialerEventType = "start"
	DialerEventMedia   DialerEventType = "media"
	DialerEventStop    DialerEventType = "stop"
	DialerEventMark    DialerEventType = "mark"
	DialerEventDtmf    DialerEventType = "dtmf"
	DialerEventUnknown DialerEventType = "unknown"
)

// DialerEvent is the canonical form of one dialer wire frame. Only the
// fields matching Type are populated.
type DialerEvent struct {
	Type DialerEventType

	// start
	CallID           string
	StreamID         string
	CustomParameters map[string]string

	// media; payload is still in the dialer's encoding
	Payload []byte

	// mark
	Name string

	// dtmf
	Digit string

	// unknown keeps the original frame for diagnostics
	Raw []byte
}

type AgentEventType string

const (
	AgentEventAudio         AgentEventType = "audio"
	AgentEventText          AgentEventType = "text"
	AgentEventTranscription AgentEventType = "transcription"
	AgentEventInterruption  AgentEventType = "interruption"
	AgentEventError         AgentEventType = "error"
	AgentEventPong          AgentEventType = "pong"
	AgentEventMetadata      AgentEventType = "metadata"
)

// AgentEvent is the canonical form of one agent emission.
type AgentEvent struct {
	Type AgentEventType

	// audio, already canonical PCM
	Audio []byte

	// text and transcription
	Text   string
	Source string

	// error
	Err string

	// pong bookkeeping
	EventID int

	// metadata keeps anything the bridge has no opinion about
	Metadata map[string]interface{}
}
