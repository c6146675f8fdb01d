// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_twilio_dialer

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	dialerName       = "twilio"
	dialerSampleRate = 8000
	agentSampleRate  = internal_type.AgentSampleRate
)

// twl is the mu-law 8kHz JSON dialer. Media streams arrive on the gateway
// websocket as base64 mu-law frames; outbound calls are placed over the
// Twilio REST API with an inline TwiML connect document.
type twl struct {
	cfg    config.TwilioConfig
	logger commons.Logger
	client *twilio.RestClient
}

func NewTwilio(cfg config.TwilioConfig, logger commons.Logger) internal_type.Dialer {
	return twl{
		cfg:    cfg,
		logger: logger,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSid,
			Password: cfg.AuthToken,
		}),
	}
}

func (tpc twl) Name() string {
	return dialerName
}

func (tpc twl) ValidateConfig() error {
	if utils.IsEmpty(tpc.cfg.AccountSid) {
		return fmt.Errorf("twilio account sid is not configured")
	}
	if !strings.HasPrefix(tpc.cfg.AccountSid, "AC") {
		return fmt.Errorf("twilio account sid must start with AC")
	}
	if utils.IsEmpty(tpc.cfg.AuthToken) {
		return fmt.Errorf("twilio auth token is not configured")
	}
	if utils.IsEmpty(tpc.cfg.FromNumber) {
		return fmt.Errorf("twilio from number is not configured")
	}
	if !strings.HasPrefix(tpc.cfg.FromNumber, "+") {
		return fmt.Errorf("twilio from number must be in E.164 format")
	}
	return nil
}

func (tpc twl) NewConverter() internal_type.AudioConverter {
	return newConverter()
}

func (tpc twl) Parser() internal_type.MessageParser {
	return parser{}
}

func (tpc twl) Builder() internal_type.MessageBuilder {
	return builder{}
}

// InitiateOutbound places a call whose answer leg is an inline TwiML connect
// document, so the custom parameters ride the directive and come back on the
// stream's start event. Provider rejections are reported in the result, not
// as an error; the caller decides what a failed call looks like upstream.
func (tpc twl) InitiateOutbound(ctx context.Context, req internal_type.OutboundRequest) (internal_type.OutboundResult, error) {
	if utils.IsEmpty(req.To) {
		return internal_type.OutboundResult{}, fmt.Errorf("destination number is required")
	}
	directive, err := builder{}.BuildConnect(req.WsURL, req.CustomParams)
	if err != nil {
		return internal_type.OutboundResult{}, fmt.Errorf("build connect directive: %w", err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(tpc.cfg.FromNumber)
	params.SetTwiml(string(directive.Body))

	tpc.logger.Infow("initiating twilio call", "to", req.To, "agent", req.AgentID)
	resp, err := tpc.client.Api.CreateCall(params)
	if err != nil {
		tpc.logger.Errorw("twilio create call failed", "to", req.To, "error", err)
		return internal_type.OutboundResult{
			Success: false,
			To:      req.To,
			From:    tpc.cfg.FromNumber,
			Status:  "failed",
			Message: fmt.Sprintf("twilio error: %v", err),
		}, nil
	}

	result := internal_type.OutboundResult{
		Success: true,
		To:      req.To,
		From:    tpc.cfg.FromNumber,
		Message: "outbound call initiated successfully",
	}
	if resp.Sid != nil {
		result.CallID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = *resp.Status
	}
	tpc.logger.Infow("twilio call initiated", "call", result.CallID, "status", result.Status)
	return result, nil
}
