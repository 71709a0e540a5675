package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/danmurelay"
)

func main() {
	// start mock feed (see mock_feed.go)
	go StartMockFeed("127.0.0.1:23333")
	time.Sleep(100 * time.Millisecond)

	relay, err := danmurelay.New(
		danmurelay.WithUpstreamURL("ws://127.0.0.1:23333/"),
		danmurelay.WithTargetGroup(demoGroup),
		danmurelay.WithPullAddr(":2334"),
		danmurelay.WithPushAddr(":2335"),
		danmurelay.WithTitle("Demo Chat"),
		danmurelay.WithPushCallback(func(r danmurelay.Record) {
			fmt.Printf("  pushed: %q (time %d)\n", r.Text, r.Time)
		}),
		danmurelay.WithErrorHook(func(e *danmurelay.Error) {
			if e.Kind == danmurelay.KindFilterMiss {
				fmt.Printf("  filtered: %s\n", e.Op)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  danmurelay demo")
	fmt.Println()
	fmt.Println("  Overlay:  http://localhost:2334/overlay")
	fmt.Println("  Pull:     curl http://localhost:2334/")
	fmt.Println("  Push:     ws://localhost:2335/ws")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := relay.Start(ctx); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}
