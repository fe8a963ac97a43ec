// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP and WebSocket endpoints of the
// viewport service. Handlers are thin: they translate between wire
// payloads and the render queue, which owns all ordering guarantees.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	kvalidation "github.com/kodiakviz/kodiakview/pkg/validation"
)

// RegisterValidators installs the custom binding rules used by the
// request structs in datatypes. Call once at service startup, before
// the first request is bound.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// "finite" rejects NaN and +/-Inf float64 fields.
		v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			return kvalidation.Finite(fl.Field().Float())
		})
	}
}

// HealthCheck reports liveness. Readiness equals liveness here: the
// queue is in-process and needs no warm-up.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
