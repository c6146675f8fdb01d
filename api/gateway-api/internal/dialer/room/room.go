// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_room_dialer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	dialerName = "room"

	// roomSampleRate is the PCM rate at the room boundary; the opus tracks
	// run at the WebRTC-native 48kHz.
	roomSampleRate  = 48000
	agentSampleRate = internal_type.AgentSampleRate

	callerIdentity  = "caller"
	gatewayIdentity = "gateway"
)

// rm is the WebRTC room dialer. There is no telephony leg: a caller obtains
// a signed room token over HTTP, joins the media-stream websocket with it,
// and audio rides an opus track pair negotiated over that socket.
type rm struct {
	cfg    config.RoomConfig
	logger commons.Logger
}

func NewRoom(cfg config.RoomConfig, logger commons.Logger) internal_type.Dialer {
	return rm{cfg: cfg, logger: logger}
}

func (r rm) Name() string {
	return dialerName
}

func (r rm) ValidateConfig() error {
	if utils.IsEmpty(r.cfg.TokenSecret) {
		return fmt.Errorf("room token secret is not configured")
	}
	return nil
}

func (r rm) NewConverter() internal_type.AudioConverter {
	return newConverter()
}

func (r rm) Parser() internal_type.MessageParser {
	return parser{}
}

func (r rm) Builder() internal_type.MessageBuilder {
	return builder{secret: []byte(r.cfg.TokenSecret)}
}

// InitiateOutbound has no call to place; "dialing out" on a room means
// minting an access token the remote participant joins with. The token
// travels back in the result message and the room name doubles as call id.
func (r rm) InitiateOutbound(ctx context.Context, req internal_type.OutboundRequest) (internal_type.OutboundResult, error) {
	if err := r.ValidateConfig(); err != nil {
		return internal_type.OutboundResult{}, err
	}

	room := newRoomName()
	token, err := internal_media.MintRoomToken([]byte(r.cfg.TokenSecret), room, callerIdentity, req.CustomParams)
	if err != nil {
		return internal_type.OutboundResult{}, fmt.Errorf("mint room token: %w", err)
	}

	r.logger.Infow("room invitation minted", "room", room, "agent", req.AgentID)
	return internal_type.OutboundResult{
		Success: true,
		CallID:  room,
		To:      req.To,
		Status:  "invited",
		Message: token,
	}, nil
}

func newRoomName() string {
	return "room-" + uuid.NewString()
}
