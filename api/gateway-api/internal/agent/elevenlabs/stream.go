// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_elevenlabs_agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// eventQueueSize bounds the downstream event queue. The reader blocks when
// the bridge falls behind: back-pressure, never silent drops.
const eventQueueSize = 64

// stream is one live conversation over the signed websocket. The stream
// owns the socket; Close releases it and ends the reader.
type stream struct {
	logger commons.Logger
	conn   *websocket.Conn

	variables map[string]interface{}

	// Gorilla allows one concurrent writer; init frames, audio frames and
	// pong replies all share this mutex.
	writeMu sync.Mutex

	events   chan internal_type.AgentEvent
	recvOnce sync.Once

	initMu      sync.Mutex
	initialized bool

	// done releases the reader if the consumer stops draining events.
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func newStream(conn *websocket.Conn, variables map[string]interface{}, logger commons.Logger) *stream {
	return &stream{
		logger:    logger,
		conn:      conn,
		variables: variables,
		events:    make(chan internal_type.AgentEvent, eventQueueSize),
		done:      make(chan struct{}),
	}
}

// Initialize sends the conversation initiation frame. Exactly once per
// stream, before any audio.
func (s *stream) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return fmt.Errorf("agent stream is already initialized")
	}
	if err := s.writeJSON(buildInitialization(s.variables)); err != nil {
		return fmt.Errorf("send initialization: %w", err)
	}
	s.initialized = true
	s.logger.Infow("agent session initialized", "variables", len(s.variables))
	return nil
}

func (s *stream) SendAudio(ctx context.Context, pcm []byte) error {
	if s.isClosed() {
		return internal_type.ErrStreamClosed
	}
	frame := userAudioChunk{UserAudioChunk: base64.StdEncoding.EncodeToString(pcm)}
	if err := s.writeJSON(frame); err != nil {
		if s.isClosed() {
			return internal_type.ErrStreamClosed
		}
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Receive starts the reader on first use and returns the event channel. The
// channel closes at end of stream.
func (s *stream) Receive() <-chan internal_type.AgentEvent {
	s.recvOnce.Do(func() {
		go s.readLoop()
	})
	return s.events
}

func (s *stream) readLoop() {
	defer close(s.events)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Infow("agent stream ended")
			} else {
				s.logger.Errorw("agent stream read failed", "error", err)
				s.push(internal_type.AgentEvent{
					Type: internal_type.AgentEventError,
					Err:  err.Error(),
				})
			}
			s.markClosed()
			return
		}

		evt := parseServerEvent(raw)
		if evt.Type == internal_type.AgentEventPong {
			// Keep-alive stays inside the stream; the bridge never sees it.
			s.answerPing(evt.EventID)
			continue
		}
		if !s.push(evt) {
			return
		}
	}
}

// push delivers one event; blocking is the back-pressure. Returns false
// when the stream closed while waiting.
func (s *stream) push(evt internal_type.AgentEvent) bool {
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) answerPing(eventID int) {
	if err := s.writeJSON(pongMessage{Type: "pong_event", EventID: eventID}); err != nil {
		s.logger.Warnw("failed to answer agent ping", "error", err, "event", eventID)
		return
	}
	s.logger.Debugw("answered agent ping", "event", eventID)
}

func (s *stream) writeJSON(payload interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Close is idempotent; closing the socket ends the read loop, which closes
// the event channel.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.markClosed()
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.logger.Debugw("agent socket close failed", "error", err)
		}
		s.logger.Infow("agent stream closed")
	})
	return nil
}
