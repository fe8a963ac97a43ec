// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the viewport service.
//
// # Rate Limiting
//
// Camera updates arrive as fast as a client can drag a mouse. The queue
// collapses bursts internally, so the limiter is not protecting the
// renderer; it protects the HTTP layer from a misbehaving client
// flooding the endpoint. Limits are tracked per client IP.
//
//	Request
//	   │
//	   ▼
//	RateLimitMiddleware
//	   │
//	   ├─► look up (or create) the client's token bucket
//	   │
//	   ├─► bucket.Allow() ── false ──► 429 Too Many Requests
//	   │
//	   └─► true ──► Handler
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Configuration
// =============================================================================

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate each client may hold.
	RequestsPerSecond float64

	// Burst is how many requests above the sustained rate a client may
	// spend at once. A mouse drag emits updates in clumps, so this
	// should comfortably exceed one clump.
	Burst int

	// ClientTTL is how long an idle client's bucket is kept before the
	// janitor drops it. Zero means DefaultClientTTL.
	ClientTTL time.Duration
}

// DefaultClientTTL is how long idle clients stay in the limiter table.
const DefaultClientTTL = 3 * time.Minute

// DefaultRateLimitConfig permits 120 updates/s with a burst of 240,
// roughly double what an interactive viewer session produces.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 120,
		Burst:             240,
		ClientTTL:         DefaultClientTTL,
	}
}

// =============================================================================
// Limiter Table
// =============================================================================

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks one token bucket per client IP.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	cfg     RateLimitConfig
}

// NewRateLimiter builds a limiter table. Zero-valued config fields fall
// back to DefaultRateLimitConfig.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = def.ClientTTL
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
	}
}

// Allow reports whether the given client may proceed right now.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[clientIP]
	if !ok {
		cl = &clientLimiter{
			bucket: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		}
		rl.clients[clientIP] = cl
	}
	cl.lastSeen = time.Now()
	return cl.bucket.Allow()
}

// Sweep drops buckets for clients idle longer than the TTL. Call it
// periodically; the table otherwise grows with every distinct client IP
// ever seen.
func (rl *RateLimiter) Sweep() {
	cutoff := time.Now().Add(-rl.cfg.ClientTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// SweepLoop calls Sweep every ClientTTL until ctx is done. Run it on
// the service's lifecycle group; without it the table leaks one bucket
// per distinct client IP.
func (rl *RateLimiter) SweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.ClientTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// size reports the number of tracked clients. Test hook.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimitMiddleware rejects clients exceeding their bucket with a
// 429. Apply it to write-path routes; read polls are cheap enough to
// leave unlimited.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
