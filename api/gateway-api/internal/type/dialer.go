// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "context"

// AudioConverter bridges one stream between the dialer's encoding and
// canonical PCM. An instance owns one resampler state per direction, so it
// serves exactly one stream and is never shared.
type AudioConverter interface {
	// DialerToPCM decodes one dialer media payload into canonical PCM.
	DialerToPCM(payload []byte) ([]byte, error)
	// PCMToDialer encodes one canonical PCM frame into the dialer's format.
	PCMToDialer(pcm []byte) ([]byte, error)
}

// MessageParser turns one decoded wire frame into a canonical event. It
// never fails: frames it cannot place come back tagged unknown.
type MessageParser interface {
	Parse(raw []byte) DialerEvent
}

// ConnectDirective is the inbound-call response body in the dialer's own
// dialect, e.g. an XML document for telephony or a token payload for rooms.
type ConnectDirective struct {
	ContentType string
	Body        []byte
}

// MessageBuilder produces outgoing wire frames.
type MessageBuilder interface {
	// BuildAudio wraps one dialer-encoded payload for the media stream.
	BuildAudio(streamID string, payload []byte) ([]byte, error)
	// BuildConnect produces the connection directive pointing the dialer's
	// media at wsURL, with params echoed back on the stream's start event.
	BuildConnect(wsURL string, params map[string]string) (ConnectDirective, error)
}

// MarkBuilder is implemented by builders whose wire protocol supports
// playback synchronization marks.
type MarkBuilder interface {
	BuildMark(streamID string, name string) ([]byte, error)
}

// ClearBuilder is implemented by builders whose wire protocol can drop
// buffered outbound audio, used when the agent signals an interruption.
type ClearBuilder interface {
	BuildClear(streamID string) ([]byte, error)
}

// UnavailableBuilder is implemented by builders that can voice a setup
// failure to the caller in-band. Telephony dialers speak the directive to
// the caller, so a bare HTTP 500 would just be dead air.
type UnavailableBuilder interface {
	BuildUnavailable() ConnectDirective
}

// BinaryFrameBuilder is implemented by builders whose audio frames are raw
// binary websocket messages rather than JSON text.
type BinaryFrameBuilder interface {
	BinaryFrames() bool
}

// OutboundRequest asks a dialer provider to place a call and hand its media
// stream to the gateway.
type OutboundRequest struct {
	To           string
	AgentID      string
	CustomParams map[string]string
	WsURL        string
	// AnswerURL is the gateway's incoming-call webhook. Providers that fetch
	// their directive after the callee answers point at this instead of
	// receiving it inline.
	AnswerURL string
}

// OutboundResult reports what the provider said.
type OutboundResult struct {
	Success bool
	CallID  string
	To      string
	From    string
	Status  string
	Message string
}

// Dialer is one registered telephony integration.
type Dialer interface {
	Name() string
	// ValidateConfig reports whether the provider credentials are usable.
	ValidateConfig() error
	// NewConverter returns a fresh per-stream codec bridge.
	NewConverter() AudioConverter
	Parser() MessageParser
	Builder() MessageBuilder
	InitiateOutbound(ctx context.Context, req OutboundRequest) (OutboundResult, error)
}
