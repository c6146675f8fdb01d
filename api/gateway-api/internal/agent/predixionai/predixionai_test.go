// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_predixionai_agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-predixionai"),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

// =============================================================================
// Phone number cleaning
// =============================================================================

func TestCleanPhoneTable(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plus country code", "+919876543210", "9876543210", false},
		{"bare country code", "919876543210", "9876543210", false},
		{"already national", "9876543210", "9876543210", false},
		{"national starting with 91", "9176543210", "9176543210", false},
		{"stray plus", "+9876543210", "9876543210", false},
		{"surrounding spaces", " +919876543210 ", "9876543210", false},
		{"too short", "12345", "", true},
		{"too long", "98765432109876", "", true},
		{"letters", "98765abcde", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanPhone(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialedNumberPrefersCustomerPhone(t *testing.T) {
	vars := map[string]interface{}{
		"customer_phone": "+919876543210",
		"to_number":      "+911111111111",
	}
	assert.Equal(t, "+919876543210", dialedNumber(vars))

	delete(vars, "customer_phone")
	assert.Equal(t, "+911111111111", dialedNumber(vars))

	assert.Equal(t, "", dialedNumber(map[string]interface{}{}))
}

func TestGatewayCallIDShape(t *testing.T) {
	id := newGatewayCallID()
	require.True(t, strings.HasPrefix(id, "gw-"))
	assert.Len(t, id, len("gw-")+12)
	assert.NotEqual(t, id, newGatewayCallID())
}

// =============================================================================
// Job dispatch
// =============================================================================

func TestDispatchPayloadShape(t *testing.T) {
	var got dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, dispatchPath, r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"room_token":"tok","websocket_url":"wss://rooms.example.com","room_name":"r1"}`))
	}))
	defer srv.Close()

	agent := NewPredixionAI(config.PredixionConfig{ApiUrl: srv.URL, ApiKey: "secret-key"}, newTestLogger(t))
	result, err := agent.(px).dispatch(context.Background(), "gw-abc123def456", map[string]interface{}{
		"to_number":      "+919876543210",
		"customer_phone": "",
		"customer_name":  "Alice",
		"eligible":       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", result.RoomToken)
	assert.Equal(t, "wss://rooms.example.com", result.WebsocketURL)
	assert.Equal(t, "r1", result.RoomName)

	assert.Equal(t, "gw-abc123def456", got.GatewayCallID)
	assert.Equal(t, "9876543210", got.CustomerPhone)
	assert.Equal(t, "Alice", got.CustomerData["customer_name"])
	assert.Equal(t, true, got.CustomerData["eligible"])
	assert.NotContains(t, got.CustomerData, "to_number", "phone fields ride at the top level")
	assert.NotContains(t, got.CustomerData, "customer_phone")
}

func TestDispatchRejectsIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"room_name":"r1"}`))
	}))
	defer srv.Close()

	agent := NewPredixionAI(config.PredixionConfig{ApiUrl: srv.URL}, newTestLogger(t))
	_, err := agent.Connect(context.Background(), "agent-1", map[string]interface{}{"to_number": "+919876543210"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room_token")
}

func TestDispatchHTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no agents free", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	agent := NewPredixionAI(config.PredixionConfig{ApiUrl: srv.URL}, newTestLogger(t))
	_, err := agent.Connect(context.Background(), "agent-1", map[string]interface{}{"to_number": "9876543210"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestConnectRejectsBadPhone(t *testing.T) {
	agent := NewPredixionAI(config.PredixionConfig{ApiUrl: "http://localhost:1"}, newTestLogger(t))
	_, err := agent.Connect(context.Background(), "agent-1", map[string]interface{}{"to_number": "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone")
}

func TestValidateConfigRequiresApiUrl(t *testing.T) {
	assert.Error(t, NewPredixionAI(config.PredixionConfig{}, newTestLogger(t)).ValidateConfig())
	assert.NoError(t, NewPredixionAI(config.PredixionConfig{ApiUrl: "https://api.example.com"}, newTestLogger(t)).ValidateConfig())
}

// =============================================================================
// Room join failure propagation
// =============================================================================

// The provider room can refuse the token after dispatch succeeded; that
// refusal must fail Connect, not linger until first audio.
func TestConnectSurfacesRoomRejection(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	roomSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		transport := internal_media.NewWSSignalTransport(conn)
		defer transport.Close()

		frame, err := transport.ReadFrame()
		if err != nil || frame.Type != internal_media.SignalJoin || frame.Token != "tok-room" {
			return
		}
		_ = transport.WriteFrame(&internal_media.SignalFrame{
			Type:   internal_media.SignalError,
			Reason: "room is full",
		})
	}))
	defer roomSrv.Close()
	roomURL := "ws" + strings.TrimPrefix(roomSrv.URL, "http")

	dispatchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp, _ := json.Marshal(map[string]string{
			"room_token":    "tok-room",
			"websocket_url": roomURL,
			"room_name":     "r9",
		})
		w.Write(resp)
	}))
	defer dispatchSrv.Close()

	agent := NewPredixionAI(config.PredixionConfig{ApiUrl: dispatchSrv.URL}, newTestLogger(t))
	_, err := agent.Connect(context.Background(), "agent-1", map[string]interface{}{"to_number": "9876543210"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room is full")
}
