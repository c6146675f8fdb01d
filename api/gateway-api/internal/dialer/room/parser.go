// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_room_dialer

import (
	"encoding/json"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

const (
	eventJoin = "join"
	eventBye  = "bye"
)

// controlFrame is the shape of room control messages on the adapted
// connection. The join frame is synthesized by the connection itself from
// the verified token claims; the room name doubles as the call id.
type controlFrame struct {
	Event    string            `json:"event"`
	Room     string            `json:"room,omitempty"`
	Identity string            `json:"identity,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// parser maps room traffic onto dialer events. Control frames are JSON
// text; everything else is raw 48kHz PCM from the remote track, so a frame
// that does not parse as a control message is media.
type parser struct{}

func (parser) Parse(raw []byte) internal_type.DialerEvent {
	if len(raw) == 0 {
		return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
	}
	if raw[0] == '{' {
		if evt, ok := parseControl(raw); ok {
			return evt
		}
	}
	return internal_type.DialerEvent{
		Type:    internal_type.DialerEventMedia,
		Payload: raw,
		Raw:     raw,
	}
}

func parseControl(raw []byte) (internal_type.DialerEvent, bool) {
	var frame controlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return internal_type.DialerEvent{}, false
	}
	switch frame.Event {
	case eventJoin:
		return internal_type.DialerEvent{
			Type:             internal_type.DialerEventStart,
			CallID:           frame.Room,
			StreamID:         frame.Room,
			CustomParameters: frame.Params,
			Raw:              raw,
		}, true
	case eventBye:
		return internal_type.DialerEvent{
			Type: internal_type.DialerEventStop,
			Raw:  raw,
		}, true
	default:
		return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}, true
	}
}
