// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vonage_dialer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	vng "github.com/vonage/vonage-go-sdk"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const dialerName = "vonage"

// vg is the linear16 16kHz telephony dialer. Vonage streams raw PCM binary
// frames over the gateway websocket, so no transcoding happens on this path;
// outbound calls are placed over the Voice API with an answer webhook that
// serves the NCCO.
type vg struct {
	cfg    config.VonageConfig
	logger commons.Logger
}

func NewVonage(cfg config.VonageConfig, logger commons.Logger) internal_type.Dialer {
	return vg{
		cfg:    cfg,
		logger: logger,
	}
}

func (vt vg) Name() string {
	return dialerName
}

func (vt vg) ValidateConfig() error {
	if utils.IsEmpty(vt.cfg.ApplicationID) {
		return fmt.Errorf("vonage application id is not configured")
	}
	if utils.IsEmpty(vt.cfg.PrivateKeyPath) {
		return fmt.Errorf("vonage private key path is not configured")
	}
	if _, err := os.Stat(vt.cfg.PrivateKeyPath); err != nil {
		return fmt.Errorf("vonage private key is not readable: %w", err)
	}
	if utils.IsEmpty(vt.cfg.FromNumber) {
		return fmt.Errorf("vonage from number is not configured")
	}
	return nil
}

func (vt vg) NewConverter() internal_type.AudioConverter {
	return newConverter()
}

func (vt vg) Parser() internal_type.MessageParser {
	return parser{}
}

func (vt vg) Builder() internal_type.MessageBuilder {
	return builder{from: vonageNumber(vt.cfg.FromNumber)}
}

// InitiateOutbound places a call whose answer webhook serves the connect
// NCCO. The custom parameters ride the answer URL query string, come back to
// the incoming-call handler when Vonage fetches the NCCO, and from there ride
// the websocket headers onto the media stream.
func (vt vg) InitiateOutbound(ctx context.Context, req internal_type.OutboundRequest) (internal_type.OutboundResult, error) {
	if utils.IsEmpty(req.To) {
		return internal_type.OutboundResult{}, fmt.Errorf("destination number is required")
	}
	if utils.IsEmpty(req.AnswerURL) {
		return internal_type.OutboundResult{}, fmt.Errorf("answer url is required")
	}

	privateKey, err := os.ReadFile(vt.cfg.PrivateKeyPath)
	if err != nil {
		return internal_type.OutboundResult{}, fmt.Errorf("read vonage private key: %w", err)
	}
	auth, err := vng.CreateAuthFromAppPrivateKey(vt.cfg.ApplicationID, privateKey)
	if err != nil {
		return internal_type.OutboundResult{}, fmt.Errorf("vonage auth: %w", err)
	}

	answerURL, err := url.Parse(req.AnswerURL)
	if err != nil {
		return internal_type.OutboundResult{}, fmt.Errorf("parse answer url: %w", err)
	}
	query := answerURL.Query()
	for key, value := range req.CustomParams {
		query.Set(key, value)
	}
	answerURL.RawQuery = query.Encode()

	client := vng.NewVoiceClient(auth)
	vt.logger.Infow("initiating vonage call", "to", req.To, "agent", req.AgentID)
	result, errResp, err := client.CreateCall(vng.CreateCallOpts{
		From:      vng.CallFrom{Type: "phone", Number: vonageNumber(vt.cfg.FromNumber)},
		To:        vng.CallTo{Type: "phone", Number: vonageNumber(req.To)},
		AnswerUrl: []string{answerURL.String()},
	})
	if err != nil {
		vt.logger.Errorw("vonage create call failed", "to", req.To, "error", err, "title", errResp.Error)
		return internal_type.OutboundResult{
			Success: false,
			To:      req.To,
			From:    vt.cfg.FromNumber,
			Status:  "failed",
			Message: fmt.Sprintf("vonage error: %v", err),
		}, nil
	}

	vt.logger.Infow("vonage call initiated", "call", result.Uuid, "status", result.Status)
	return internal_type.OutboundResult{
		Success: true,
		CallID:  result.Uuid,
		To:      req.To,
		From:    vt.cfg.FromNumber,
		Status:  result.Status,
		Message: "outbound call initiated successfully",
	}, nil
}

// vonageNumber strips the E.164 plus sign, which the Voice API rejects.
func vonageNumber(number string) string {
	return strings.TrimPrefix(number, "+")
}
