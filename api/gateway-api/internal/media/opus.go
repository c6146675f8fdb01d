// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"

	internal_audio "github.com/rapidaai/voice-gateway/api/gateway-api/internal/audio"
	media_internal "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media/internal"
)

// OpusCodec encodes and decodes mono 48kHz PCM. The RTP leg signals two
// channels per RFC 7587 but the payload itself is encoded mono voice.
// Not safe for concurrent use; each direction owns its own codec.
type OpusCodec struct {
	encoder   *opus.Encoder
	decoder   *opus.Decoder
	pcmBuf    []int16
	floatBuf  []float32
	packetBuf []byte
}

func NewOpusCodec() (*OpusCodec, error) {
	encoder, err := opus.NewEncoder(media_internal.OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	decoder, err := opus.NewDecoder(media_internal.OpusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusCodec{
		encoder:   encoder,
		decoder:   decoder,
		pcmBuf:    make([]int16, media_internal.MaxOpusFrameSamples),
		floatBuf:  make([]float32, media_internal.MaxOpusFrameSamples),
		packetBuf: make([]byte, media_internal.RTPBufferSize),
	}, nil
}

// Encode compresses one complete PCM frame (20ms mono 48kHz) into an opus
// packet. The returned slice is only valid until the next Encode call.
func (c *OpusCodec) Encode(pcm []byte) ([]byte, error) {
	samples := internal_audio.BytesToInt16(pcm)
	n, err := c.encoder.Encode(samples, c.packetBuf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return c.packetBuf[:n], nil
}

// Decode expands one opus packet into mono 48kHz PCM bytes.
func (c *OpusCodec) Decode(packet []byte) ([]byte, error) {
	n, err := c.decoder.Decode(packet, c.pcmBuf)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return internal_audio.Int16ToBytes(c.pcmBuf[:n]), nil
}

// DecodeFloat32 expands one opus packet into mono 48kHz float samples. The
// returned slice is only valid until the next DecodeFloat32 call.
func (c *OpusCodec) DecodeFloat32(packet []byte) ([]float32, error) {
	n, err := c.decoder.DecodeFloat32(packet, c.floatBuf)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return c.floatBuf[:n], nil
}
