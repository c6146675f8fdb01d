// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vonage_dialer

import (
	"encoding/json"
	"fmt"
	"net/url"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

// Vonage puts the NCCO websocket headers at the top level of the connected
// event, next to its own fields. These are the fields that are Vonage's own
// and never personalization parameters.
var reservedConnectedFields = map[string]struct{}{
	"event":        {},
	"content-type": {},
	"call_id":      {},
}

// parser maps Vonage websocket traffic onto dialer events. Control frames
// are JSON text; everything else on the socket is raw linear16 audio, so a
// frame that does not parse as a control message is media, not garbage.
// Vonage sends no stop frame; socket EOF ends the call.
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
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return internal_type.DialerEvent{}, false
	}
	event, _ := fields["event"].(string)
	switch event {
	case "websocket:connected":
		callID, _ := fields["call_id"].(string)
		params := make(map[string]string)
		for key, value := range fields {
			if _, reserved := reservedConnectedFields[key]; reserved {
				continue
			}
			params[key] = fmt.Sprintf("%v", value)
		}
		return internal_type.DialerEvent{
			Type:             internal_type.DialerEventStart,
			CallID:           callID,
			StreamID:         callID,
			CustomParameters: params,
			Raw:              raw,
		}, true
	case "dtmf":
		digit, _ := fields["digit"].(string)
		return internal_type.DialerEvent{
			Type:  internal_type.DialerEventDtmf,
			Digit: digit,
			Raw:   raw,
		}, true
	default:
		// JSON control frames the gateway does not understand are dropped
		// upstream, never forwarded as audio.
		return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}, true
	}
}

// Answer-webhook query fields that belong to Vonage, not to the operator.
var reservedAnswerFields = map[string]struct{}{
	"uuid":              {},
	"conversation_uuid": {},
	"from":              {},
	"to":                {},
	"region_url":        {},
}

// ParseInbound extracts call coordinates from a Vonage answer webhook. The
// webhook echoes whatever extra query parameters InitiateOutbound hung on
// the answer URL, so those pass through as custom parameters and carry the
// outbound call's agent routing back in.
func (vt vg) ParseInbound(values url.Values) internal_type.InboundRequest {
	params := make(map[string]string)
	for key := range values {
		if _, reserved := reservedAnswerFields[key]; reserved {
			continue
		}
		params[key] = values.Get(key)
	}
	return internal_type.InboundRequest{
		CallID:       values.Get("uuid"),
		From:         values.Get("from"),
		To:           values.Get("to"),
		CustomParams: params,
	}
}
