package gateway_routers

import (
	"github.com/gin-gonic/gin"

	gatewayCallsApi "github.com/rapidaai/voice-gateway/api/gateway-api/api/calls"
	internal_auth "github.com/rapidaai/voice-gateway/api/gateway-api/internal/auth"
	internal_callcontext "github.com/rapidaai/voice-gateway/api/gateway-api/internal/callcontext"
	internal_registry "github.com/rapidaai/voice-gateway/api/gateway-api/internal/registry"
	internal_type "github.com/rapidaai/voice-gateway/api/gateway-api/internal/type"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// GatewayRoutes wires every call-facing endpoint onto the engine. The
// outbound-call surface sits behind the gateway api key; provider webhooks
// and media streams stay open because providers authenticate at their own
// edge.
func GatewayRoutes(
	cfg *config.GatewayConfig,
	engine *gin.Engine,
	logger commons.Logger,
	store internal_callcontext.Store,
	dialers *internal_registry.Registry[internal_type.Dialer],
	agents *internal_registry.Registry[internal_type.Agent],
) {
	logger.Info("Gateway call routes added to engine.")
	apiv1 := engine.Group("")
	callsApi := gatewayCallsApi.New(cfg, logger, store, dialers, agents)
	{
		apiv1.GET("/", callsApi.Root)
		apiv1.GET("/health", callsApi.Health)

		apiv1.POST("/:dialer/outbound-call", internal_auth.ApiKey(cfg, logger), callsApi.OutboundCall)

		// providers deliver webhooks as POST but fetch answer urls with GET
		apiv1.POST("/:dialer/incoming-call", callsApi.IncomingCall)
		apiv1.GET("/:dialer/incoming-call", callsApi.IncomingCall)
		apiv1.GET("/:dialer/media-stream", callsApi.MediaStream)
	}
}
