// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_auth guards the management endpoints. Media and webhook
// endpoints stay open: telephony providers cannot present gateway keys, they
// authenticate at their own edge.
package internal_auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// ApiKey accepts requests carrying one of the configured gateway keys on the
// x-api-key header. An empty key list locks the guarded endpoints instead of
// opening them.
func ApiKey(cfg *config.GatewayConfig, logger commons.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(utils.HEADER_API_KEY)
		if key == "" || !permitted(cfg.ApiKeys, key) {
			logger.Warnw("rejected unauthenticated request",
				"path", c.Request.URL.Path,
				"remote", c.ClientIP())
			c.Header("WWW-Authenticate", "ApiKey")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing api key",
			})
			return
		}
		c.Next()
	}
}

func permitted(keys []string, key string) bool {
	for _, k := range keys {
		if k != "" && k == key {
			return true
		}
	}
	return false
}
