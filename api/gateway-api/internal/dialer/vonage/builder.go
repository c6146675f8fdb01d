// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vonage_dialer

import (
	"encoding/json"
	"fmt"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

const (
	nccoContentType = "application/json"
	l16ContentType  = "audio/l16;rate=16000"
)

type nccoConnect struct {
	Action   string         `json:"action"`
	From     string         `json:"from,omitempty"`
	Endpoint []nccoEndpoint `json:"endpoint"`
}

type nccoEndpoint struct {
	Type        string            `json:"type"`
	URI         string            `json:"uri"`
	ContentType string            `json:"content-type"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type nccoTalk struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// builder renders NCCO documents and outbound audio frames. Audio toward
// Vonage is raw linear16 on the socket, so BuildAudio is identity and the
// frames go out as binary websocket messages.
type builder struct {
	from string
}

func (builder) BuildAudio(streamID string, payload []byte) ([]byte, error) {
	return payload, nil
}

func (builder) BinaryFrames() bool {
	return true
}

// BuildConnect answers a call with a websocket connect action. The custom
// parameters ride the endpoint headers and Vonage echoes them at the top
// level of the websocket:connected event.
func (b builder) BuildConnect(wsURL string, params map[string]string) (internal_type.ConnectDirective, error) {
	headers := make(map[string]string, len(params))
	for k, v := range params {
		headers[k] = v
	}
	ncco := []interface{}{
		nccoConnect{
			Action: "connect",
			From:   b.from,
			Endpoint: []nccoEndpoint{{
				Type:        "websocket",
				URI:         wsURL,
				ContentType: l16ContentType,
				Headers:     headers,
			}},
		},
	}
	body, err := json.Marshal(ncco)
	if err != nil {
		return internal_type.ConnectDirective{}, fmt.Errorf("marshal ncco: %w", err)
	}
	return internal_type.ConnectDirective{ContentType: nccoContentType, Body: body}, nil
}

// BuildUnavailable voices a setup failure through an NCCO talk action.
func (builder) BuildUnavailable() internal_type.ConnectDirective {
	body, err := json.Marshal([]interface{}{
		nccoTalk{Action: "talk", Text: "Service temporarily unavailable"},
	})
	if err != nil {
		body = []byte(`[{"action":"talk","text":"Service temporarily unavailable"}]`)
	}
	return internal_type.ConnectDirective{ContentType: nccoContentType, Body: body}
}
