// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_twilio_dialer

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

const twimlContentType = "application/xml"

// builder renders outbound Media Streams frames and the TwiML documents
// served on the voice webhook.
type builder struct{}

func (builder) BuildAudio(streamID string, payload []byte) ([]byte, error) {
	frame := wireMessage{
		Event:     "media",
		StreamSid: streamID,
		Media:     &mediaPayload{Payload: string(payload)},
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal media frame: %w", err)
	}
	return out, nil
}

func (builder) BuildMark(streamID string, name string) ([]byte, error) {
	frame := wireMessage{
		Event:     "mark",
		StreamSid: streamID,
		Mark:      &markPayload{Name: name},
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal mark frame: %w", err)
	}
	return out, nil
}

// BuildClear tells Twilio to flush any audio it has buffered but not yet
// played, so an interrupting caller does not hear the stale tail.
func (builder) BuildClear(streamID string) ([]byte, error) {
	frame := wireMessage{
		Event:     "clear",
		StreamSid: streamID,
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal clear frame: %w", err)
	}
	return out, nil
}

// BuildConnect renders the TwiML that points the call at the media stream
// websocket. Every custom parameter becomes a <Parameter> element and is
// echoed back verbatim inside the start frame once the stream opens.
func (builder) BuildConnect(wsURL string, params map[string]string) (internal_type.ConnectDirective, error) {
	doc := twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{URL: wsURL},
		},
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		// The start frame already carries the callSid; repeating it as a
		// parameter would only bloat the document.
		if k == "call_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc.Connect.Stream.Parameters = append(doc.Connect.Stream.Parameters, twimlParameter{
			Name:  k,
			Value: params[k],
		})
	}
	body, err := renderTwiml(doc)
	if err != nil {
		return internal_type.ConnectDirective{}, err
	}
	return internal_type.ConnectDirective{ContentType: twimlContentType, Body: body}, nil
}

// BuildUnavailable voices a setup failure to the caller and hangs up. It is
// served in place of the connect document when no agent can take the call.
func (builder) BuildUnavailable() internal_type.ConnectDirective {
	doc := twimlResponse{
		Say:    "Service temporarily unavailable",
		Hangup: &struct{}{},
	}
	body, err := renderTwiml(doc)
	if err != nil {
		// The document is static, marshalling it cannot fail.
		body = []byte(xml.Header + "<Response><Say>Service temporarily unavailable</Say><Hangup></Hangup></Response>")
	}
	return internal_type.ConnectDirective{ContentType: twimlContentType, Body: body}
}

func renderTwiml(doc twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Say     string        `xml:"Say,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}
