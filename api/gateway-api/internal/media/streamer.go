// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"bytes"
	"context"
	"io"
	"sync"

	media_internal "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media/internal"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// ============================================================================
// Streamer — channel & buffer management between a room and the bridge
// ============================================================================

// Streamer owns the audio channels and accumulation buffers between a room
// peer and the rest of the gateway. It handles:
//
//   - inboundCh: decoded room audio (48kHz PCM) coalesced into 100ms chunks
//   - outboundCh: gateway audio (48kHz PCM) cut into complete 20ms frames
//   - flushCh: interrupt signalling for the paced track writer
//   - PushInbound / PushOutbound: non-blocking accumulation
//   - ClearInbound / ClearOutbound: buffer + channel draining
//   - Disconnect: idempotent teardown signalling
//
// The session implements transport-specific logic (track I/O, opus,
// signaling) on top; the streamer never touches the network.
type Streamer struct {
	mu sync.Mutex

	logger commons.Logger

	// The streamer owns its own context (derived from context.Background)
	// so that teardown is never short-circuited by the caller's context
	// being cancelled first.
	ctx    context.Context
	cancel context.CancelFunc

	// closed is true once Disconnect has run.
	closed bool

	inboundCh          chan []byte
	inboundBuffer      *bytes.Buffer
	inboundBufferLock  sync.Mutex
	outboundCh         chan []byte
	outboundBuffer     *bytes.Buffer
	outboundBufferLock sync.Mutex

	// flushCh signals the paced writer to discard its pending frame queue
	// (used on interruption to silence stale audio immediately).
	flushCh chan struct{}
}

func NewStreamer(logger commons.Logger) *Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Streamer{
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		inboundCh:      make(chan []byte, media_internal.InboundChannelSize),
		outboundCh:     make(chan []byte, media_internal.OutboundChannelSize),
		inboundBuffer:  new(bytes.Buffer),
		outboundBuffer: new(bytes.Buffer),
		flushCh:        make(chan struct{}, 1),
	}
}

// ============================================================================
// Inbound: room -> gateway
// ============================================================================

// PushInbound accumulates decoded track audio and forwards it on inboundCh
// once the buffer reaches the coalescing threshold.
func (s *Streamer) PushInbound(pcm []byte) {
	s.inboundBufferLock.Lock()
	s.inboundBuffer.Write(pcm)

	if s.inboundBuffer.Len() < media_internal.InboundBufferThreshold {
		s.inboundBufferLock.Unlock()
		return
	}

	chunk := make([]byte, s.inboundBuffer.Len())
	s.inboundBuffer.Read(chunk)
	s.inboundBufferLock.Unlock()

	s.push(s.inboundCh, chunk, "inbound")
}

// ReadInbound returns the next inbound chunk. Chunks already queued are
// drained even after Disconnect; io.EOF follows once the queue is empty.
func (s *Streamer) ReadInbound() ([]byte, error) {
	select {
	case chunk := <-s.inboundCh:
		return chunk, nil
	default:
	}
	select {
	case chunk := <-s.inboundCh:
		return chunk, nil
	case <-s.ctx.Done():
		return nil, io.EOF
	}
}

// ClearInbound resets the inbound accumulation buffer and drains the
// inbound channel.
func (s *Streamer) ClearInbound() {
	s.inboundBufferLock.Lock()
	s.inboundBuffer.Reset()
	s.inboundBufferLock.Unlock()
	for {
		select {
		case <-s.inboundCh:
		default:
			return
		}
	}
}

// ============================================================================
// Outbound: gateway -> room
// ============================================================================

// PushOutbound accumulates 48kHz PCM and cuts as many complete 20ms frames
// as possible onto outboundCh. Opus encoding happens later, at pacing time.
func (s *Streamer) PushOutbound(pcm []byte) {
	s.outboundBufferLock.Lock()
	s.outboundBuffer.Write(pcm)

	if s.outboundBuffer.Len() < media_internal.OutboundBufferThreshold {
		s.outboundBufferLock.Unlock()
		return
	}

	for s.outboundBuffer.Len() >= media_internal.OpusFrameBytes {
		frame := make([]byte, media_internal.OpusFrameBytes)
		s.outboundBuffer.Read(frame)
		s.outboundBufferLock.Unlock()

		s.push(s.outboundCh, frame, "outbound")

		s.outboundBufferLock.Lock()
	}
	s.outboundBufferLock.Unlock()
}

// OutboundFrames is consumed by the session's paced track writer.
func (s *Streamer) OutboundFrames() <-chan []byte {
	return s.outboundCh
}

// FlushSignal fires when queued outbound audio must be discarded.
func (s *Streamer) FlushSignal() <-chan struct{} {
	return s.flushCh
}

// ClearOutbound resets the outbound PCM buffer, signals the paced writer to
// drop its pending frame queue, and drains the outbound channel.
func (s *Streamer) ClearOutbound() {
	// 1. Reset the accumulation buffer so no new frames are cut.
	s.outboundBufferLock.Lock()
	s.outboundBuffer.Reset()
	s.outboundBufferLock.Unlock()

	// 2. Signal the writer before draining outboundCh, so it cannot dequeue
	//    a frame between the drain and the signal.
	select {
	case s.flushCh <- struct{}{}:
	default:
	}

	// 3. Drain the outbound channel.
	for {
		select {
		case <-s.outboundCh:
		default:
			return
		}
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// push sends on ch without blocking; a full channel drops the chunk.
func (s *Streamer) push(ch chan []byte, chunk []byte, direction string) {
	select {
	case ch <- chunk:
	default:
		s.logger.Warnw("Streamer channel full, dropping audio", "direction", direction, "bytes", len(chunk))
	}
}

// Disconnect ends the streamer. It is idempotent and safe from any
// goroutine; queued inbound chunks remain readable until drained.
func (s *Streamer) Disconnect() {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if alreadyClosed {
		return
	}
	s.cancel()
}

// Disconnected reports whether Disconnect has run.
func (s *Streamer) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Context returns the streamer-scoped context.
func (s *Streamer) Context() context.Context {
	return s.ctx
}
