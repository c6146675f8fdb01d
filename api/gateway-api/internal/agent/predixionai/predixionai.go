// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_predixionai_agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_media "github.com/rapidaai/voice-gateway/api/gateway-api/internal/media"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	agentName    = "predixionai"
	dispatchPath = "/call-gateway"

	// Job dispatch provisions a room server-side before answering; give it
	// more headroom than a plain lookup.
	dispatchTimeout = 15 * time.Second
)

// dispatchRequest asks the provider to spin up an agent room for one call.
// The phone rides at the top level; everything else is customer context.
type dispatchRequest struct {
	GatewayCallID string                 `json:"gateway_call_id"`
	CustomerPhone string                 `json:"customer_phone"`
	CustomerData  map[string]interface{} `json:"customer_data"`
}

type dispatchResponse struct {
	RoomToken    string `json:"room_token"`
	WebsocketURL string `json:"websocket_url"`
	RoomName     string `json:"room_name"`
}

// px is the room-based agent. Connect dispatches a job over HTTP, then joins
// the room the provider provisioned; audio rides an opus track pair instead
// of JSON frames.
type px struct {
	cfg    config.PredixionConfig
	logger commons.Logger
	http   *resty.Client
}

func NewPredixionAI(cfg config.PredixionConfig, logger commons.Logger) internal_type.Agent {
	return px{
		cfg:    cfg,
		logger: logger,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.ApiUrl, "/")).
			SetTimeout(dispatchTimeout),
	}
}

func (p px) Name() string {
	return agentName
}

func (p px) ValidateConfig() error {
	if utils.IsEmpty(p.cfg.ApiUrl) {
		return fmt.Errorf("predixionai api url is not configured")
	}
	return nil
}

func (p px) Connect(ctx context.Context, agentID string, variables map[string]interface{}) (internal_type.AgentStream, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	callID := newGatewayCallID()
	room, err := p.dispatch(ctx, callID, variables)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, room.WebsocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent room: %w", err)
	}
	session, err := internal_media.JoinSession(ctx, internal_media.NewWSSignalTransport(conn), room.RoomToken, p.logger)
	if err != nil {
		return nil, fmt.Errorf("join agent room: %w", err)
	}

	p.logger.Infow("agent room joined", "call", callID, "room", room.RoomName)
	return newStream(session, callID, p.logger), nil
}

// dispatch provisions the agent room for this call.
func (p px) dispatch(ctx context.Context, callID string, variables map[string]interface{}) (*dispatchResponse, error) {
	phone, err := cleanPhone(dialedNumber(variables))
	if err != nil {
		return nil, err
	}

	customerData := make(map[string]interface{}, len(variables))
	for key, value := range variables {
		if key == "customer_phone" || key == "to_number" {
			continue
		}
		customerData[key] = value
	}

	var result dispatchResponse
	request := p.http.R().
		SetContext(ctx).
		SetBody(dispatchRequest{
			GatewayCallID: callID,
			CustomerPhone: phone,
			CustomerData:  customerData,
		}).
		SetResult(&result)
	if !utils.IsEmpty(p.cfg.ApiKey) {
		request.SetHeader(utils.HEADER_API_KEY, p.cfg.ApiKey)
	}

	p.logger.Infow("dispatching agent job", "call", callID, "phone", phone)
	resp, err := request.Post(dispatchPath)
	if err != nil {
		return nil, fmt.Errorf("job dispatch request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("job dispatch failed: %s: %s", resp.Status(), resp.String())
	}
	if utils.IsEmpty(result.RoomToken) || utils.IsEmpty(result.WebsocketURL) {
		return nil, fmt.Errorf("job dispatch response missing room_token or websocket_url")
	}
	return &result, nil
}

func newGatewayCallID() string {
	return "gw-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// dialedNumber prefers the explicit customer phone over the dialed number.
func dialedNumber(variables map[string]interface{}) string {
	if phone, ok := variables["customer_phone"].(string); ok && phone != "" {
		return phone
	}
	if phone, ok := variables["to_number"].(string); ok {
		return phone
	}
	return ""
}

// cleanPhone reduces a dialed number to the 10-digit national form the
// dispatch API expects. Country prefixes are stripped only while the number
// is still longer than 10 digits, so a local number starting with the same
// digits survives intact.
func cleanPhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	phone = strings.TrimPrefix(phone, "+91")
	phone = strings.TrimPrefix(phone, "+")
	if len(phone) > 10 {
		phone = strings.TrimPrefix(phone, "91")
	}
	phone = strings.TrimSpace(phone)

	if len(phone) != 10 || !isDigits(phone) {
		return "", fmt.Errorf("invalid phone number %q: expected a 10-digit mobile number", raw)
	}
	return phone, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
