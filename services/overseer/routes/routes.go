// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes exposes the thin HTTP surface over the governance loop:
// a cycle trigger, the latest cycle record, health, and Prometheus metrics.
// The loop itself never depends on this package.
package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/overseer/services/overseer"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

type thinkRequest struct {
	Mode string `json:"mode"`
}

// SetupRoutes registers all Overseer endpoints on the router.
func SetupRoutes(router *gin.Engine, o *overseer.Overseer, cycles store.CycleStore, defaultMode datatypes.Mode) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1/overseer")
	{
		v1.POST("/:tenant/think", handleThink(o, defaultMode))
		v1.GET("/:tenant/cycles/latest", handleLatestCycle(cycles))
	}
}

// handleThink triggers a cycle asynchronously. Think never errors; the
// caller polls the cycle record for the outcome, so 202 is all we owe them.
func handleThink(o *overseer.Overseer, defaultMode datatypes.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("tenant")

		mode := defaultMode
		var req thinkRequest
		if err := c.ShouldBindJSON(&req); err == nil && req.Mode != "" {
			parsed, err := datatypes.ParseMode(req.Mode)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			mode = parsed
		}

		// Detached from the request context: the cycle outlives the HTTP
		// exchange.
		go o.Think(context.Background(), tenantID, mode)

		c.JSON(http.StatusAccepted, gin.H{
			"tenant": tenantID,
			"mode":   mode,
			"hint":   "poll /v1/overseer/" + tenantID + "/cycles/latest",
		})
	}
}

func handleLatestCycle(cycles store.CycleStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("tenant")
		cycle, err := cycles.LatestCycle(c.Request.Context(), tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no cycles recorded for tenant"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}
