// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package gateway_calls_api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
)

type outboundMetadata struct {
	ToNumber         string                 `json:"to_number"`
	DynamicVariables map[string]interface{} `json:"dynamic_variables"`
}

// outboundCallRequest is the management API body: which agent conversation
// to run and the call metadata for the telephony provider.
type outboundCallRequest struct {
	AgentID   string           `json:"agent_id" binding:"required"`
	SessionID string           `json:"session_id"`
	Metadata  outboundMetadata `json:"metadata"`
}

// OutboundCall places a call through the named dialer. The agent id and the
// dynamic variables ride the connection directive as custom parameters, so
// the bridge sees them again on the media stream's start frame.
//
// @Router /:dialer/outbound-call [post]
func (capi *CallsApi) OutboundCall(c *gin.Context) {
	dialer, err := capi.dialers.Get(c.Param("dialer"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	if err := dialer.ValidateConfig(); err != nil {
		capi.logger.Errorw("dialer is not configured",
			"dialer", dialer.Name(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("%s credentials not configured: %v", dialer.Name(), err),
		})
		return
	}

	if req.Metadata.ToNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_number is required in metadata"})
		return
	}

	customParams := make(map[string]string, len(req.Metadata.DynamicVariables)+2)
	customParams["agent_id"] = req.AgentID
	customParams["to_number"] = req.Metadata.ToNumber
	for key, value := range req.Metadata.DynamicVariables {
		customParams[key] = stringifyVariable(value)
	}

	capi.logger.Infow("initiating outbound call",
		"dialer", dialer.Name(),
		"to", req.Metadata.ToNumber,
		"agent", req.AgentID,
		"session", req.SessionID)

	result, err := dialer.InitiateOutbound(c.Request.Context(), internal_type.OutboundRequest{
		To:           req.Metadata.ToNumber,
		AgentID:      req.AgentID,
		CustomParams: customParams,
		WsURL:        capi.buildWebsocketURL(dialer.Name()),
		AnswerURL:    capi.buildAnswerURL(dialer.Name()),
	})
	if err != nil {
		capi.logger.Errorw("outbound call failed",
			"dialer", dialer.Name(), "to", req.Metadata.ToNumber, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"call_id": result.CallID,
		"to":      result.To,
		"from":    result.From,
		"status":  result.Status,
		"message": result.Message,
	})
}

// stringifyVariable flattens one dynamic variable for directive transport.
// Booleans become literal "true"/"false" so the bridge can coerce them back
// on the other side.
func stringifyVariable(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
