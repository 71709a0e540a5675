// Standalone mock event feed for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockfeed
//
// Then in another terminal:
//
//	go run ./cmd/danmurelay serve -c example/config.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:23333", "listen address")
	group := flag.Int64("group", 42, "group id to send messages for")
	every := flag.Duration("every", 3*time.Second, "interval between messages")
	flag.Parse()

	fmt.Printf("Mock event feed starting on ws://%s/\n", *addr)
	fmt.Printf("Sending a group %d message every %s\n", *group, *every)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	upgrader := websocket.Upgrader{}
	var sent atomic.Int64

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		slog.Info("client connected", "remote", r.RemoteAddr)

		ticker := time.NewTicker(*every)
		defer ticker.Stop()

		for range ticker.C {
			n := sent.Add(1)
			frame, _ := json.Marshal(map[string]any{
				"post_type":    "message",
				"message_type": "group",
				"group_id":     *group,
				"time":         time.Now().Unix(),
				"message": []any{
					map[string]any{"type": "text", "data": map[string]any{
						"text": fmt.Sprintf("message #%d (%d)", n, rand.Intn(1000)),
					}},
				},
			})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Info("client disconnected", "error", err)
				return
			}
		}
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
