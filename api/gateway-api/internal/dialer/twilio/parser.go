// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_twilio_dialer

import (
	"encoding/json"
	"net/url"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

// parser maps Twilio Media Streams frames onto dialer events. Anything it
// cannot place, malformed JSON included, comes back as an unknown event so
// the bridge can skip it without dropping the call.
type parser struct{}

func (parser) Parse(raw []byte) internal_type.DialerEvent {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
	}
	switch msg.Event {
	case "start":
		if msg.Start == nil {
			return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
		}
		params := make(map[string]string, len(msg.Start.CustomParameters))
		for k, v := range msg.Start.CustomParameters {
			params[k] = v
		}
		return internal_type.DialerEvent{
			Type:             internal_type.DialerEventStart,
			CallID:           msg.Start.CallSid,
			StreamID:         msg.Start.StreamSid,
			CustomParameters: params,
			Raw:              raw,
		}
	case "media":
		if msg.Media == nil || msg.Media.Payload == "" {
			return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
		}
		return internal_type.DialerEvent{
			Type:     internal_type.DialerEventMedia,
			StreamID: msg.StreamSid,
			Payload:  []byte(msg.Media.Payload),
			Raw:      raw,
		}
	case "stop":
		evt := internal_type.DialerEvent{
			Type:     internal_type.DialerEventStop,
			StreamID: msg.StreamSid,
			Raw:      raw,
		}
		if msg.Stop != nil {
			evt.CallID = msg.Stop.CallSid
		}
		return evt
	case "mark":
		evt := internal_type.DialerEvent{
			Type:     internal_type.DialerEventMark,
			StreamID: msg.StreamSid,
			Raw:      raw,
		}
		if msg.Mark != nil {
			evt.Name = msg.Mark.Name
		}
		return evt
	case "dtmf":
		evt := internal_type.DialerEvent{
			Type:     internal_type.DialerEventDtmf,
			StreamID: msg.StreamSid,
			Raw:      raw,
		}
		if msg.Dtmf != nil {
			evt.Digit = msg.Dtmf.Digit
		}
		return evt
	default:
		return internal_type.DialerEvent{Type: internal_type.DialerEventUnknown, Raw: raw}
	}
}

// ParseInbound extracts the call coordinates from a Twilio voice webhook.
// Twilio's own form fields are CamelCase; anything an operator hangs on the
// webhook URL (snake_case by convention) passes through as a custom
// parameter.
func (tpc twl) ParseInbound(values url.Values) internal_type.InboundRequest {
	params := make(map[string]string)
	for key := range values {
		if key == "" || (key[0] >= 'A' && key[0] <= 'Z') {
			continue
		}
		params[key] = values.Get(key)
	}
	return internal_type.InboundRequest{
		CallID:       values.Get("CallSid"),
		From:         values.Get("From"),
		To:           values.Get("To"),
		CustomParams: params,
	}
}
