// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_room_dialer

import (
	internal_audio "github.com/rapidaai/voice-gateway/api/gateway-api/internal/audio"
)

// converter translates between the room's 48kHz PCM and canonical 16kHz
// PCM. Both sides are already 16-bit linear, so the only work is the rate
// change; each direction owns a stateful resampler, so a converter serves
// exactly one call and must not be shared.
type converter struct {
	toAgent *internal_audio.Resampler
	toRoom  *internal_audio.Resampler
}

func newConverter() *converter {
	return &converter{
		toAgent: internal_audio.NewResampler(roomSampleRate, agentSampleRate),
		toRoom:  internal_audio.NewResampler(agentSampleRate, roomSampleRate),
	}
}

func (c *converter) DialerToPCM(payload []byte) ([]byte, error) {
	return c.toAgent.Convert(payload), nil
}

func (c *converter) PCMToDialer(pcm []byte) ([]byte, error) {
	return c.toRoom.Convert(pcm), nil
}
