// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_predixionai_agent

import (
	"context"
	"fmt"
	"io"
	"sync"

	internal_audio "github.com/rapidaai/voice-gateway/api/gateway-api/internal/audio"
	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

const (
	roomSampleRate  = 48000
	agentSampleRate = internal_type.AgentSampleRate

	// eventQueueSize bounds the downstream event queue; the reader blocks
	// when the bridge falls behind rather than dropping audio.
	eventQueueSize = 64
)

// stream adapts a joined room session to the agent stream contract. The
// variables already went out with the job dispatch, so Initialize has no
// frame to send; it still runs exactly once before audio.
type stream struct {
	logger  commons.Logger
	session *internal_media.Session
	callID  string

	// One resampler per direction, each owned by the task pumping that
	// direction. toRoom belongs to SendAudio, fromRoom to the read loop.
	toRoom   *internal_audio.Resampler
	fromRoom *internal_audio.Resampler

	events   chan internal_type.AgentEvent
	recvOnce sync.Once

	initMu      sync.Mutex
	initialized bool

	done      chan struct{}
	closeOnce sync.Once
}

func newStream(session *internal_media.Session, callID string, logger commons.Logger) *stream {
	return &stream{
		logger:   logger,
		session:  session,
		callID:   callID,
		toRoom:   internal_audio.NewResampler(agentSampleRate, roomSampleRate),
		fromRoom: internal_audio.NewResampler(roomSampleRate, agentSampleRate),
		events:   make(chan internal_type.AgentEvent, eventQueueSize),
		done:     make(chan struct{}),
	}
}

func (s *stream) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return fmt.Errorf("agent stream is already initialized")
	}
	s.initialized = true
	s.logger.Infow("agent room session ready", "call", s.callID)
	return nil
}

// SendAudio captures canonical PCM into the published track.
func (s *stream) SendAudio(ctx context.Context, pcm []byte) error {
	if err := s.session.PushAudio(s.toRoom.Convert(pcm)); err != nil {
		if err == io.EOF {
			return internal_type.ErrStreamClosed
		}
		return fmt.Errorf("push audio to room: %w", err)
	}
	return nil
}

func (s *stream) Receive() <-chan internal_type.AgentEvent {
	s.recvOnce.Do(func() {
		go s.readLoop()
	})
	return s.events
}

// readLoop drains the subscribed track until the session ends.
func (s *stream) readLoop() {
	defer close(s.events)

	for {
		chunk, err := s.session.ReadAudio()
		if err != nil {
			if err != io.EOF {
				s.logger.Errorw("agent room read failed", "call", s.callID, "error", err)
			}
			return
		}
		evt := internal_type.AgentEvent{
			Type:  internal_type.AgentEventAudio,
			Audio: s.fromRoom.Convert(chunk),
		}
		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.session.Close()
		s.logger.Infow("agent room session closed", "call", s.callID)
	})
	return err
}
