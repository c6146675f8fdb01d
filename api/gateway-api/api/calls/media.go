// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package gateway_calls_api

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_bridge "github.com/rapidaai/voice-gateway/api/gateway-api/internal/bridge"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Providers connect from their own clouds; the webhook layer is the
	// trust boundary, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MediaStream upgrades the provider's media connection and runs a bridge on
// it until the call ends. Dialers with their own transport semantics adapt
// the socket first; everyone else gets the plain websocket framing.
//
// @Router /:dialer/media-stream [get]
func (capi *CallsApi) MediaStream(c *gin.Context) {
	dialer, err := capi.dialers.Get(c.Param("dialer"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		capi.logger.Errorw("websocket upgrade failed",
			"dialer", dialer.Name(), "error", err)
		return
	}

	var dialerConn internal_type.DialerConn
	if adapter, ok := dialer.(internal_type.StreamAdapter); ok {
		dialerConn, err = adapter.Adapt(c.Request.Context(), conn, capi.logger)
		if err != nil {
			capi.logger.Errorw("stream adaptation failed",
				"dialer", dialer.Name(), "error", err)
			_ = conn.Close()
			return
		}
	} else {
		dialerConn = newWSConn(conn)
	}

	bridge := internal_bridge.New(dialer, capi.agents, capi.store, capi.cfg.DefaultAgent, dialerConn, capi.logger)
	if err := bridge.Run(c.Request.Context()); err != nil {
		capi.logger.Warnw("media stream closed with error",
			"dialer", dialer.Name(), "error", err)
	}
}

// wsConn adapts a raw gorilla connection to the bridge's connection
// contract. gorilla allows a single concurrent writer, so both frame kinds
// share one mutex; reading stays exclusive to the bridge's read loop.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (w *wsConn) Read() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived) || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) WriteText(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) WriteBinary(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
