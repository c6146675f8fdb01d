// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Signaling frame types exchanged over the room websocket before and during
// a session. The joining side sends "join" with its access token, the room
// side answers with "offer", and candidates trickle in both directions.
const (
	SignalJoin      = "join"
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
	SignalReady     = "ready"
	SignalBye       = "bye"
	SignalError     = "error"
)

// CandidateInit mirrors the fields of a trickled ICE candidate.
type CandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SignalFrame is one JSON message on the signaling channel.
type SignalFrame struct {
	Type      string         `json:"type"`
	Token     string         `json:"token,omitempty"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate *CandidateInit `json:"candidate,omitempty"`
	Room      string         `json:"room,omitempty"`
	Identity  string         `json:"identity,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// SignalTransport carries signaling frames between the two ends of a room
// session.
type SignalTransport interface {
	ReadFrame() (*SignalFrame, error)
	WriteFrame(frame *SignalFrame) error
	Close() error
}

// wsSignalTransport runs signaling over a websocket connection. Gorilla
// connections allow one concurrent writer, so writes are serialized here.
type wsSignalTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSSignalTransport wraps an established websocket connection as a
// signaling transport.
func NewWSSignalTransport(conn *websocket.Conn) SignalTransport {
	return &wsSignalTransport{conn: conn}
}

func (t *wsSignalTransport) ReadFrame() (*SignalFrame, error) {
	_, raw, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame := &SignalFrame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("decode signaling frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("signaling frame carries no type")
	}
	return frame, nil
}

func (t *wsSignalTransport) WriteFrame(frame *SignalFrame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode signaling frame: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, raw)
}

func (t *wsSignalTransport) Close() error {
	return t.conn.Close()
}
