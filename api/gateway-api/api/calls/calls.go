// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package gateway_calls_api exposes the gateway's HTTP surface: call setup
// webhooks, the outbound-call initiator and the media-stream endpoint that
// hands connections to the bridge.
package gateway_calls_api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_registry "github.com/rapidaai/voice-gateway/api/gateway-api/internal/registry"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// CallsApi serves every call-facing endpoint. One instance is shared by all
// routes; per-call state lives in the store and the bridges.
type CallsApi struct {
	cfg      *config.GatewayConfig
	logger   commons.Logger
	store    internal_callcontext.Store
	dialers  *internal_registry.Registry[internal_type.Dialer]
	agents   *internal_registry.Registry[internal_type.Agent]
	resolver ContextResolver
}

func New(
	cfg *config.GatewayConfig,
	logger commons.Logger,
	store internal_callcontext.Store,
	dialers *internal_registry.Registry[internal_type.Dialer],
	agents *internal_registry.Registry[internal_type.Agent],
) *CallsApi {
	return &CallsApi{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		dialers:  dialers,
		agents:   agents,
		resolver: NewDemoResolver(cfg.Demo),
	}
}

// WithResolver swaps the inbound context source, the extension point a real
// deployment uses to plug in its CRM or campaign lookup.
func (capi *CallsApi) WithResolver(resolver ContextResolver) *CallsApi {
	capi.resolver = resolver
	return capi
}

func (capi *CallsApi) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": capi.cfg.Name,
		"version": capi.cfg.Version,
		"status":  "running",
	})
}

func (capi *CallsApi) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// buildWebsocketURL names the media-stream endpoint the way the provider
// must dial it: plain ws against the local bind during development, wss
// against the public host everywhere else.
func (capi *CallsApi) buildWebsocketURL(dialerName string) string {
	scheme := "wss"
	if capi.cfg.IsDevelopment() {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/%s/media-stream", scheme, capi.authority(), dialerName)
}

// buildAnswerURL names the incoming-call webhook for providers that fetch
// their directive only after the callee answers.
func (capi *CallsApi) buildAnswerURL(dialerName string) string {
	scheme := "https"
	if capi.cfg.IsDevelopment() {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/incoming-call", scheme, capi.authority(), dialerName)
}

func (capi *CallsApi) authority() string {
	if capi.cfg.PublicHost != "" {
		return capi.cfg.PublicHost
	}
	host := capi.cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if !capi.cfg.IsDevelopment() && (capi.cfg.Port == 80 || capi.cfg.Port == 443) {
		return host
	}
	return fmt.Sprintf("%s:%d", host, capi.cfg.Port)
}
