// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_room_dialer

import (
	"encoding/json"
	"fmt"

	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

const inviteContentType = "application/json"

// roomInvite is the connect directive body: everything a caller needs to
// join the room over the media-stream websocket.
type roomInvite struct {
	RoomName     string `json:"room_name"`
	AccessToken  string `json:"access_token"`
	WebsocketURL string `json:"websocket_url"`
}

// builder renders room invitations and outbound audio frames. Audio toward
// the room is raw 48kHz PCM captured into the published track, so BuildAudio
// is identity and the frames go out as binary messages.
type builder struct {
	secret []byte
}

func (builder) BuildAudio(streamID string, payload []byte) ([]byte, error) {
	return payload, nil
}

func (builder) BinaryFrames() bool {
	return true
}

// BuildConnect is token issuance rather than a wire response: it mints an
// access token whose claims come back as the start parameters when the
// holder joins. The call id rides in as a parameter and names the room, so
// a pre-registered call context can be claimed on join.
func (b builder) BuildConnect(wsURL string, params map[string]string) (internal_type.ConnectDirective, error) {
	room := params["call_id"]
	if room == "" {
		room = newRoomName()
	}
	token, err := internal_media.MintRoomToken(b.secret, room, callerIdentity, params)
	if err != nil {
		return internal_type.ConnectDirective{}, fmt.Errorf("mint room token: %w", err)
	}

	body, err := json.Marshal(roomInvite{
		RoomName:     room,
		AccessToken:  token,
		WebsocketURL: wsURL,
	})
	if err != nil {
		return internal_type.ConnectDirective{}, fmt.Errorf("marshal room invite: %w", err)
	}
	return internal_type.ConnectDirective{ContentType: inviteContentType, Body: body}, nil
}
