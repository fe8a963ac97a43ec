// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kodiakviz/kodiakview/services/viewport/handlers"
	"github.com/kodiakviz/kodiakview/services/viewport/middleware"
	"github.com/kodiakviz/kodiakview/services/viewport/observability"
	"github.com/kodiakviz/kodiakview/services/viewport/queue"
)

// SetupRoutes registers every endpoint of the viewport service.
//
// Endpoints:
//
//	GET  /health              - Liveness check
//	GET  /metrics             - Prometheus scrape target
//	POST /v1/viewport/camera  - Submit a camera pose (rate limited)
//	GET  /v1/viewport/image   - Consume-once frame poll
//	GET  /v1/viewport/ws      - Interactive streaming session
//	GET  /v1/viewport/stats   - Queue state snapshot
func SetupRoutes(router *gin.Engine, q *queue.RenderQueue, metrics *observability.QueueMetrics,
	limiter *middleware.RateLimiter, frameInterval time.Duration) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		viewport := v1.Group("/viewport")
		{
			viewport.POST("/camera", middleware.RateLimitMiddleware(limiter), handlers.HandleCameraUpdate(q))
			viewport.GET("/image", handlers.HandleImageFetch(q))
			viewport.GET("/ws", handlers.HandleViewportStream(q, metrics, frameInterval))
			viewport.GET("/stats", handlers.HandleStats(q))
		}
	}
}
