// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_room_dialer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// Adapt turns the upgraded media-stream websocket into a room connection.
// The socket itself carries only signaling: the first frame must be a join
// with a valid room token, after which the gateway hosts the peer connection
// and audio moves on the negotiated opus tracks.
func (r rm) Adapt(ctx context.Context, conn *websocket.Conn, logger commons.Logger) (internal_type.DialerConn, error) {
	transport := internal_media.NewWSSignalTransport(conn)

	frame, err := transport.ReadFrame()
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("read join frame: %w", err)
	}
	if frame.Type != internal_media.SignalJoin {
		rejectJoin(transport, "expected join frame")
		return nil, fmt.Errorf("expected join frame, got %q", frame.Type)
	}

	claims, err := internal_media.VerifyRoomToken([]byte(r.cfg.TokenSecret), frame.Token)
	if err != nil {
		logger.Warnw("room join rejected", "error", err)
		rejectJoin(transport, "invalid room token")
		return nil, fmt.Errorf("verify room token: %w", err)
	}

	session, err := internal_media.HostSession(ctx, transport, logger, claims.Room, gatewayIdentity)
	if err != nil {
		return nil, fmt.Errorf("host room session: %w", err)
	}

	start, err := json.Marshal(controlFrame{
		Event:    eventJoin,
		Room:     claims.Room,
		Identity: claims.Identity,
		Params:   claims.Params,
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("encode start frame: %w", err)
	}

	logger.Infow("room participant joined", "room", claims.Room, "identity", claims.Identity)
	return &roomConn{session: session, start: start}, nil
}

func rejectJoin(transport internal_media.SignalTransport, reason string) {
	_ = transport.WriteFrame(&internal_media.SignalFrame{
		Type:   internal_media.SignalError,
		Reason: reason,
	})
	transport.Close()
}

// roomConn presents the hosted session as a dialer connection. The first
// Read yields a synthesized join control frame so the parser can emit the
// start event; every Read after that is a chunk of 48kHz PCM decoded from
// the remote track.
type roomConn struct {
	session *internal_media.Session

	mu    sync.Mutex
	start []byte
}

func (c *roomConn) Read() ([]byte, error) {
	c.mu.Lock()
	if c.start != nil {
		frame := c.start
		c.start = nil
		c.mu.Unlock()
		return frame, nil
	}
	c.mu.Unlock()
	return c.session.ReadAudio()
}

// WriteText has no wire to ride; the room speaks binary audio and internal
// signaling only.
func (c *roomConn) WriteText(data []byte) error {
	return fmt.Errorf("room connection carries no text frames")
}

func (c *roomConn) WriteBinary(data []byte) error {
	if err := c.session.PushAudio(data); err != nil {
		if err == io.EOF {
			return internal_type.ErrStreamClosed
		}
		return err
	}
	return nil
}

// Flush drops audio queued toward the caller; used on agent interruption.
func (c *roomConn) Flush() {
	c.session.Flush()
}

func (c *roomConn) Close() error {
	return c.session.Close()
}
