// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
	"github.com/kodiakviz/kodiakview/services/viewport/handlers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestConfigUnmarshalYAML(t *testing.T) {
	cfg := DefaultConfig()
	doc := `
port: 9000
backend: remote
remote_url: http://renderer:9800
remote_timeout: 30s
preview_pass_delay: 50ms
frame_interval: 16ms
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "remote", cfg.Backend)
	assert.Equal(t, "http://renderer:9800", cfg.RemoteURL)
	assert.Equal(t, 30*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.PreviewPassDelay)
	assert.Equal(t, 16*time.Millisecond, cfg.FrameInterval)

	t.Run("unset fields keep defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, yaml.Unmarshal([]byte("port: 9000\n"), &cfg))
		assert.Equal(t, DefaultConfig().Backend, cfg.Backend)
		assert.Equal(t, DefaultConfig().FrameInterval, cfg.FrameInterval)
	})

	t.Run("bad duration is an error", func(t *testing.T) {
		cfg := DefaultConfig()
		err := yaml.Unmarshal([]byte("frame_interval: soon\n"), &cfg)
		require.Error(t, err)
	})
}

func TestNewConfigValidation(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = "raytracer"
		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "raytracer")
	})

	t.Run("remote backend needs a URL", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = "remote"
		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote_url")
	})

	t.Run("missing ladder file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LadderPath = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := New(cfg)
		require.Error(t, err)
	})
}

func TestServiceEndToEnd(t *testing.T) {
	ladderPath := filepath.Join(t.TempDir(), "ladder.yaml")
	require.NoError(t, os.WriteFile(ladderPath, []byte(
		"levels:\n  - width: 8\n    height: 4\n    fov: 36\n"), 0o644))

	cfg := DefaultConfig()
	cfg.LadderPath = ladderPath
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Queue().Close()

	router := svc.Router()

	// Health is up.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Submit a pose.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/viewport/camera",
		strings.NewReader(`{"position":[0,1,2],"rotation":[0,30,0]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp datatypes.CameraUpdateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Generation)

	// Poll until the frame for it lands.
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/viewport/image", nil))
		if w.Code == http.StatusOK {
			break
		}
		require.True(t, time.Now().Before(deadline), "no frame delivered")
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, "1", w.Header().Get(handlers.HeaderGeneration))
	assert.Len(t, w.Body.Bytes(), 8*4*4)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	svc, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
