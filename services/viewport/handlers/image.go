// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kodiakviz/kodiakview/services/viewport/queue"
)

// Response headers describing the delivered frame.
const (
	HeaderGeneration = "X-Kodiak-Generation"
	HeaderQuality    = "X-Kodiak-Quality"
	HeaderWidth      = "X-Kodiak-Width"
	HeaderHeight     = "X-Kodiak-Height"
)

// HandleImageFetch is the consume-once poll endpoint.
//
// 200 carries raw RGBA pixels with the frame geometry in headers.
// 204 means no new image since the last fetch. That is the normal idle
// answer, deliberately not an error status.
func HandleImageFetch(q *queue.RenderQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := q.GetImage()
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}

		c.Header(HeaderGeneration, strconv.FormatUint(res.Generation, 10))
		c.Header(HeaderQuality, strconv.Itoa(res.Quality))
		c.Header(HeaderWidth, strconv.Itoa(res.Image.Width))
		c.Header(HeaderHeight, strconv.Itoa(res.Image.Height))
		c.Data(http.StatusOK, "application/octet-stream", res.Image.Pixels)
	}
}
