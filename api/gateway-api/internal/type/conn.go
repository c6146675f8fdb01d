// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"context"
	"errors"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// ErrStreamClosed reports a write against a stream that already ended. The
// bridge treats it as a normal teardown signal rather than a failure.
var ErrStreamClosed = errors.New("stream is closed")

// DialerConn is the bridge's view of one live media connection. Read blocks
// until a frame arrives or the connection ends; writes are safe from any
// goroutine.
type DialerConn interface {
	Read() ([]byte, error)
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	Close() error
}

// Flusher is implemented by connections that can drop audio already queued
// toward the caller. Used on interruption when the wire protocol has no
// clear frame of its own.
type Flusher interface {
	Flush()
}

// StreamAdapter is implemented by dialers whose media does not ride the
// upgraded websocket directly, e.g. a room dialer that uses the socket only
// for signaling and moves audio over a peer connection.
type StreamAdapter interface {
	Adapt(ctx context.Context, conn *websocket.Conn, logger commons.Logger) (DialerConn, error)
}

// InboundRequest is the provider-neutral shape of an incoming-call webhook.
type InboundRequest struct {
	CallID       string
	From         string
	To           string
	CustomParams map[string]string
}

// InboundParser is implemented by dialers whose webhook carries call
// metadata the gateway should keep, keyed however the provider spells it.
type InboundParser interface {
	ParseInbound(values url.Values) InboundRequest
}
