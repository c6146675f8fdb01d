// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_twilio_dialer

import (
	"encoding/base64"
	"fmt"

	internal_audio "github.com/rapidaai/voice-gateway/api/gateway-api/internal/audio"
)

// converter translates between Twilio's base64 mu-law 8kHz frames and the
// 16-bit 16kHz PCM the agent side speaks. Each direction owns a stateful
// resampler, so a converter serves exactly one call and must not be shared.
type converter struct {
	up   *internal_audio.Resampler
	down *internal_audio.Resampler
}

func newConverter() *converter {
	return &converter{
		up:   internal_audio.NewResampler(dialerSampleRate, agentSampleRate),
		down: internal_audio.NewResampler(agentSampleRate, dialerSampleRate),
	}
}

// DialerToPCM decodes a base64 mu-law media payload and upsamples it to
// canonical PCM. Empty payloads yield empty PCM without disturbing the
// resampler state.
func (c *converter) DialerToPCM(payload []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return c.up.Convert(internal_audio.MulawToPCM(raw)), nil
}

// PCMToDialer downsamples canonical PCM to 8kHz, compresses it to mu-law
// and base64-encodes it for the media frame payload.
func (c *converter) PCMToDialer(pcm []byte) ([]byte, error) {
	mulaw := internal_audio.PCMToMulaw(c.down.Convert(pcm))
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(mulaw)))
	base64.StdEncoding.Encode(encoded, mulaw)
	return encoded, nil
}
