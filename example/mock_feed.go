package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	demoGroup  = 42
	otherGroup = 7
)

var demoLines = []string{
	"hello from chat",
	"好耶",
	"gg",
	"<3 this song",
	"first time here",
	"what game is this?",
}

// mockFrame builds a OneBot group message event. Some frames carry an image
// segment between two text segments, which the relay skips.
func mockFrame(group int64, text string) []byte {
	segments := []any{
		map[string]any{"type": "text", "data": map[string]any{"text": text}},
	}
	if rand.Intn(4) == 0 {
		segments = append(segments,
			map[string]any{"type": "image", "data": map[string]any{"file": "sticker.png"}},
			map[string]any{"type": "text", "data": map[string]any{"text": " !!"}},
		)
	}

	frame, _ := json.Marshal(map[string]any{
		"post_type":    "message",
		"message_type": "group",
		"group_id":     group,
		"time":         time.Now().Unix(),
		"message":      segments,
	})
	return frame
}

// StartMockFeed runs a websocket event feed that sends a group message every
// 2-5 seconds to each connected client. About one message in five is for a
// different group and is filtered out by the relay.
// Call this in a goroutine before starting the relay.
func StartMockFeed(addr string) {
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		slog.Info("relay connected to mock feed", "remote", r.RemoteAddr)

		for {
			time.Sleep(time.Duration(2000+rand.Intn(3000)) * time.Millisecond)

			group := int64(demoGroup)
			if rand.Intn(5) == 0 {
				group = otherGroup
			}
			line := demoLines[rand.Intn(len(demoLines))]

			if err := conn.WriteMessage(websocket.TextMessage, mockFrame(group, line)); err != nil {
				slog.Info("relay disconnected from mock feed", "error", err)
				return
			}
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock feed stopped", "error", err)
	}
}
