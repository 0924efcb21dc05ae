// Command sweeper runs the inactivity sweep as its own process, the same
// way the teacher splits cmd/matcher and cmd/moderator out from the
// websocket server so a crash or redeploy of one service never drops the
// others' connections. It shares Redis state with any number of
// cmd/relaybot processes but owns no transport update loop of its own —
// it only ever sends outbound notices.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/sweeper"
	"github.com/whisper/anonrelay/internal/transport/telegram"
	"github.com/whisper/anonrelay/internal/userstate"
)

func main() {
	log.Println("Starting Whisper sweeper service...")

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	db := store.NewWithClient(rdb)

	chatTimeout := 10 * time.Minute
	if v := os.Getenv("CHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			chatTimeout = d
		}
	}

	state := userstate.New(db, chatTimeout)
	q := queue.New(db, 0)
	ratings := rating.New(db)
	pm := pairing.New(db, state, ratings, nil)

	var notifier sweeper.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		tr, err := telegram.New(token)
		if err != nil {
			log.Printf("telegram unavailable, sweeping without user notices: %v", err)
		} else {
			notifier = tr
			defer tr.Close()
		}
	}

	sw := sweeper.New(db, state, q, pm, notifier, chatTimeout)

	log.Printf("Whisper sweeper running")
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  chat_timeout: %s", chatTimeout)
	log.Printf("  notify:       %s", strconv.FormatBool(notifier != nil))

	runCtx, stop := context.WithCancel(context.Background())
	go sw.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()
	rdb.Close()
}
