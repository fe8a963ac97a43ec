// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kodiakviz/kodiakview/pkg/validation"
	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
	"github.com/kodiakviz/kodiakview/services/viewport/queue"
)

// HandleCameraUpdate accepts a camera pose update.
//
// The update is acknowledged with 202 and the assigned generation; the
// render for it happens asynchronously. A non-finite or malformed pose
// is a 400 and leaves the generation counter untouched.
func HandleCameraUpdate(q *queue.RenderQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CameraUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		pos, err := validation.Vec3FromSlice(req.Position)
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		rot, err := validation.Vec3FromSlice(req.Rotation)
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		gen, err := q.UpdateCamera(pos, rot)
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, datatypes.CameraUpdateResponse{Generation: gen})
	}
}

// HandleStats exposes the queue's state snapshot for debugging and
// dashboards.
func HandleStats(q *queue.RenderQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, q.Stats())
	}
}
