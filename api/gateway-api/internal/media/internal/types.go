// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package media_internal

// Opus audio constants (WebRTC standard: 48kHz)
const (
	OpusSampleRate    = 48000
	OpusFrameDuration = 20   // milliseconds
	OpusFrameBytes    = 1920 // 960 samples * 2 bytes (20ms mono at 48kHz)
	OpusChannels      = 2    // Opus RTP always signals 2 encoding channels (opus/48000/2) per RFC 7587, even for mono voice
	OpusPayloadType   = 111  // Standard dynamic payload type for Opus
	OpusSDPFmtpLine   = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"

	// MaxOpusFrameSamples sizes the decode buffer: 120ms at 48kHz, the
	// largest frame libopus will produce.
	MaxOpusFrameSamples = 5760
)

// Channel and buffer sizes
const (
	InboundChannelSize   = 500  // Buffered channel for room-to-gateway audio (~10s of 20ms frames)
	OutboundChannelSize  = 1500 // Buffered channel for gateway-to-room audio (~30s of 20ms frames)
	RTPBufferSize        = 1500 // Max RTP packet size (MTU)
	MaxConsecutiveErrors = 50   // Max track read errors before stopping

	// InboundBufferThreshold coalesces decoded 48kHz PCM into 100ms chunks
	// (96 bytes/ms * 100ms) — larger chunks = fewer channel writes.
	InboundBufferThreshold = 9600

	// OutboundBufferThreshold triggers cutting accumulated 48kHz PCM into
	// complete 20ms frames. Must be >= OpusFrameBytes so at least one full
	// frame can be flushed.
	OutboundBufferThreshold = OpusFrameBytes

	// OutboundPaceInterval is the real-time interval between consecutive
	// track samples. Matches OpusFrameDuration so agent audio bursts are
	// smoothed to playback rate rather than flooding the peer.
	OutboundPaceInterval = OpusFrameDuration // milliseconds
)

// Config holds WebRTC configuration
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
}

// ICEServer represents a STUN/TURN server
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns default WebRTC configuration
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
	}
}
