// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_elevenlabs_agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	agentName     = "elevenlabs"
	signedURLPath = "/v1/convai/conversation/get-signed-url"

	// The signed-URL exchange is a short control-plane call; the signed URL
	// itself has a first-use window, so retry-by-waiting is pointless.
	handshakeTimeout = 10 * time.Second
)

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// el is the websocket-JSON conversational agent. Connect swaps the API key
// for a short-lived signed websocket URL, then dials it.
type el struct {
	cfg    config.ElevenLabsConfig
	logger commons.Logger
	http   *resty.Client
}

func NewElevenLabs(cfg config.ElevenLabsConfig, logger commons.Logger) internal_type.Agent {
	return el{
		cfg:    cfg,
		logger: logger,
		http: resty.New().
			SetBaseURL(cfg.BaseUrl).
			SetTimeout(handshakeTimeout),
	}
}

func (e el) Name() string {
	return agentName
}

func (e el) ValidateConfig() error {
	if utils.IsEmpty(e.cfg.ApiKey) {
		return fmt.Errorf("elevenlabs api key is not configured")
	}
	return nil
}

func (e el) Connect(ctx context.Context, agentID string, variables map[string]interface{}) (internal_type.AgentStream, error) {
	if err := e.ValidateConfig(); err != nil {
		return nil, err
	}
	if utils.IsEmpty(agentID) {
		return nil, fmt.Errorf("agent id is required")
	}

	signedURL, err := e.signedURL(ctx, agentID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent websocket: %w", err)
	}
	e.logger.Infow("agent websocket connected", "agent", agentID)
	return newStream(conn, variables, e.logger), nil
}

// signedURL exchanges the API key for the conversation's websocket URL.
func (e el) signedURL(ctx context.Context, agentID string) (string, error) {
	var result signedURLResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.cfg.ApiKey).
		SetQueryParam("agent_id", agentID).
		SetResult(&result).
		Get(signedURLPath)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("signed url request failed: %s: %s", resp.Status(), resp.String())
	}
	if utils.IsEmpty(result.SignedURL) {
		return "", fmt.Errorf("no signed url in agent response")
	}
	return result.SignedURL, nil
}
