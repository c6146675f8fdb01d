// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internal_elevenlabs_agent "github.com/rapidaai/voice-gateway/api/gateway-api/internal/agent/elevenlabs"
	internal_predixionai_agent "github.com/rapidaai/voice-gateway/api/gateway-api/internal/agent/predixionai"
	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_room_dialer "github.com/rapidaai/voice-gateway/api/gateway-api/internal/dialer/room"
	internal_twilio_dialer "github.com/rapidaai/voice-gateway/api/gateway-api/internal/dialer/twilio"
	internal_vonage_dialer "github.com/rapidaai/voice-gateway/api/gateway-api/internal/dialer/vonage"
	internal_registry "github.com/rapidaai/voice-gateway/api/gateway-api/internal/registry"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	gateway_routers "github.com/rapidaai/voice-gateway/api/gateway-api/router"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config init error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.GetGatewayConfig(vConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.IsDevelopment() {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, utils.HEADER_API_KEY)
		engine.Use(cors.New(corsCfg))
	}

	store := internal_callcontext.NewStore(logger)
	dialers := internal_registry.New[internal_type.Dialer](logger, "dialer")
	agents := internal_registry.New[internal_type.Agent](logger, "agent")
	registerDialers(cfg, logger, dialers)
	registerAgents(cfg, logger, agents)

	gateway_routers.GatewayRoutes(cfg, engine, logger, store, dialers, agents)

	logger.Infow("starting voice gateway",
		"version", cfg.Version,
		"environment", cfg.RapidaEnvironment().Get(),
		"host", cfg.Host,
		"port", cfg.Port,
		"dialers", dialers.Names(),
		"agents", agents.Names(),
		"default_dialer", cfg.DefaultDialer,
		"default_agent", cfg.DefaultAgent)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
		// Media streams are long-lived websockets, so only the header read
		// carries a server-side deadline.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infow("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Errorw("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("http server shutdown error", "error", err)
	}
	logger.Info("voice gateway stopped")
}

// registerDialers installs every telephony integration. Missing credentials
// only warn: an unconfigured dialer still serves webhooks in development and
// fails cleanly on outbound placement.
func registerDialers(cfg *config.GatewayConfig, logger commons.Logger, dialers *internal_registry.Registry[internal_type.Dialer]) {
	for _, d := range []internal_type.Dialer{
		internal_twilio_dialer.NewTwilio(cfg.Twilio, logger),
		internal_vonage_dialer.NewVonage(cfg.Vonage, logger),
		internal_room_dialer.NewRoom(cfg.Room, logger),
	} {
		dialers.Register(d.Name(), d)
		if err := d.ValidateConfig(); err != nil {
			logger.Warnw("dialer registered without working credentials",
				"dialer", d.Name(), "error", err)
		}
	}
}

func registerAgents(cfg *config.GatewayConfig, logger commons.Logger, agents *internal_registry.Registry[internal_type.Agent]) {
	for _, a := range []internal_type.Agent{
		internal_elevenlabs_agent.NewElevenLabs(cfg.ElevenLabs, logger),
		internal_predixionai_agent.NewPredixionAI(cfg.Predixion, logger),
	} {
		agents.Register(a.Name(), a)
		if err := a.ValidateConfig(); err != nil {
			logger.Warnw("agent registered without working credentials",
				"agent", a.Name(), "error", err)
		}
	}
}
