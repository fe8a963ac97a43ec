// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// wsMessage is the union of everything the server can send; Type
// discriminates.
type wsMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Quality    int    `json:"quality"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Data       string `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// readUntil reads messages until pred returns true or the deadline
// passes. Every intermediate message is handed to pred as well, so
// callers can assert on ordering while they wait.
func readUntil(t *testing.T, ws *websocket.Conn, pred func(wsMessage) bool) wsMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func TestHandleViewportStream(t *testing.T) {
	q := testQueue(t)

	r := gin.New()
	r.GET("/v1/viewport/ws", HandleViewportStream(q, nil, time.Millisecond))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/viewport/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	// First message is always the session handshake.
	first := readUntil(t, ws, func(m wsMessage) bool { return true })
	if first.Type != "session_created" || first.SessionID == "" {
		t.Fatalf("handshake = %+v", first)
	}

	// A camera update is acked with its generation.
	update := datatypes.WSEnvelope{
		Type:     "camera",
		Position: []float64{1, 2, 3},
		Rotation: []float64{0, 45, 0},
	}
	if err := ws.WriteJSON(update); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readUntil(t, ws, func(m wsMessage) bool { return m.Type == "camera_ack" })
	if ack.Generation != 1 {
		t.Errorf("ack generation = %d, want 1", ack.Generation)
	}

	// The rendered frame for that generation follows.
	frame := readUntil(t, ws, func(m wsMessage) bool { return m.Type == "frame" })
	if frame.Generation != 1 {
		t.Errorf("frame generation = %d, want 1", frame.Generation)
	}
	if frame.Width != 8 || frame.Height != 4 {
		t.Errorf("frame geometry = %dx%d, want 8x4", frame.Width, frame.Height)
	}
	pixels, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		t.Fatalf("frame payload is not base64: %v", err)
	}
	if len(pixels) != 8*4*4 {
		t.Errorf("frame payload is %d bytes, want %d", len(pixels), 8*4*4)
	}

	// Unknown message types get an error ack, not a disconnect.
	if err := ws.WriteJSON(map[string]string{"type": "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errAck := readUntil(t, ws, func(m wsMessage) bool { return m.Type == "error" })
	if !strings.Contains(errAck.Error, "teleport") {
		t.Errorf("error ack = %q, want the offending type named", errAck.Error)
	}

	// A malformed pose over the socket is rejected the same way the
	// HTTP endpoint rejects it.
	if err := ws.WriteJSON(datatypes.WSEnvelope{Type: "camera", Position: []float64{1}, Rotation: []float64{0, 0, 0}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	badAck := readUntil(t, ws, func(m wsMessage) bool { return m.Type == "error" })
	if !strings.Contains(badAck.Error, "position") {
		t.Errorf("error ack = %q, want position named", badAck.Error)
	}
}

func TestHandleViewportStreamCloseEndsSession(t *testing.T) {
	q := testQueue(t)

	r := gin.New()
	r.GET("/v1/viewport/ws", HandleViewportStream(q, nil, time.Millisecond))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/viewport/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readUntil(t, ws, func(m wsMessage) bool { return m.Type == "session_created" })
	ws.Close()
	// The server side tears down via its read loop; nothing to assert
	// beyond not hanging. Give it a beat so the goroutine exits before
	// the queue is closed by cleanup.
	time.Sleep(50 * time.Millisecond)
}

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}
