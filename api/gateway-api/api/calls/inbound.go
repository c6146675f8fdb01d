// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package gateway_calls_api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
)

// ContextResolver produces the call context for an inbound call: who the
// agent is and which variables personalize it. The resolver runs before the
// caller hears anything, so it must stay fast.
type ContextResolver interface {
	Resolve(ctx context.Context, dialerName string, inbound internal_type.InboundRequest) (*internal_callcontext.CallContext, error)
}

// demoResolver hands every caller the configured demo conversation; it is
// the stand-in for a CRM or campaign lookup.
type demoResolver struct {
	cfg config.DemoConfig
}

func NewDemoResolver(cfg config.DemoConfig) ContextResolver {
	return demoResolver{cfg: cfg}
}

func (r demoResolver) Resolve(ctx context.Context, dialerName string, inbound internal_type.InboundRequest) (*internal_callcontext.CallContext, error) {
	if r.cfg.AgentID == "" {
		return nil, fmt.Errorf("no demo agent configured for inbound calls")
	}
	return &internal_callcontext.CallContext{
		AgentID: r.cfg.AgentID,
		DynamicVariables: map[string]interface{}{
			"name":             "Test Customer",
			"due_date":         "30th January 2026",
			"total_enr_amount": "25000",
			"emi_eligibility":  true,
			"waiver_eligible":  false,
			"emi_eligible":     true,
		},
	}, nil
}

// IncomingCall answers a provider's call webhook with the dialer's connect
// directive. A webhook that already names an agent gets its parameters
// echoed straight into the directive; otherwise the resolver supplies a
// context, it is stored under the provider's call id and only that id rides
// the directive. Setup failures answer in the dialer's own format because
// the provider speaks the response to the caller.
//
// @Router /:dialer/incoming-call [post]
func (capi *CallsApi) IncomingCall(c *gin.Context) {
	dialer, err := capi.dialers.Get(c.Param("dialer"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	inbound := capi.parseInbound(c, dialer)
	wsURL := capi.buildWebsocketURL(dialer.Name())

	if inbound.CustomParams["agent_id"] != "" {
		capi.logger.Infow("incoming call with inline context",
			"dialer", dialer.Name(), "call", inbound.CallID)
		capi.respondDirective(c, dialer, wsURL, inbound.CustomParams)
		return
	}

	cc, err := capi.resolver.Resolve(c.Request.Context(), dialer.Name(), inbound)
	if err != nil {
		capi.logger.Errorw("inbound context resolution failed",
			"dialer", dialer.Name(), "call", inbound.CallID, "error", err)
		capi.respondUnavailable(c, dialer)
		return
	}

	callID := inbound.CallID
	if callID == "" {
		callID = uuid.New().String()
	}
	cc.CallID = callID
	cc.Provider = dialer.Name()
	cc.Direction = internal_callcontext.DirectionInbound
	cc.CallerNumber = inbound.From
	cc.CalleeNumber = inbound.To

	if _, err := capi.store.Save(c.Request.Context(), cc); err != nil {
		capi.logger.Errorw("saving call context failed",
			"dialer", dialer.Name(), "call", callID, "error", err)
		capi.respondUnavailable(c, dialer)
		return
	}

	capi.logger.Infow("incoming call",
		"dialer", dialer.Name(),
		"call", callID,
		"from", inbound.From,
		"agent", cc.AgentID)

	capi.respondDirective(c, dialer, wsURL, map[string]string{"call_id": callID})
}

// parseInbound merges the query string and form body and hands them to the
// dialer's webhook parser when it has one. Dialers without a parser get the
// raw values as custom parameters, which is all a non-telephony dialer
// needs.
func (capi *CallsApi) parseInbound(c *gin.Context, dialer internal_type.Dialer) internal_type.InboundRequest {
	values := url.Values{}
	for key, vals := range c.Request.URL.Query() {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	if err := c.Request.ParseForm(); err == nil {
		for key, vals := range c.Request.PostForm {
			for _, v := range vals {
				values.Add(key, v)
			}
		}
	}

	if ip, ok := dialer.(internal_type.InboundParser); ok {
		return ip.ParseInbound(values)
	}

	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return internal_type.InboundRequest{CustomParams: params}
}

func (capi *CallsApi) respondDirective(c *gin.Context, dialer internal_type.Dialer, wsURL string, params map[string]string) {
	directive, err := dialer.Builder().BuildConnect(wsURL, params)
	if err != nil {
		capi.logger.Errorw("connect directive build failed",
			"dialer", dialer.Name(), "error", err)
		capi.respondUnavailable(c, dialer)
		return
	}
	c.Data(http.StatusOK, directive.ContentType, directive.Body)
}

// respondUnavailable answers a failed setup in the dialer's wire format when
// it has one; the provider voices that directive to the caller, whereas a
// bare 500 would just break the webhook.
func (capi *CallsApi) respondUnavailable(c *gin.Context, dialer internal_type.Dialer) {
	if ub, ok := dialer.Builder().(internal_type.UnavailableBuilder); ok {
		directive := ub.BuildUnavailable()
		c.Data(http.StatusOK, directive.ContentType, directive.Body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "service temporarily unavailable"})
}
