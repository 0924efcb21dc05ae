// Command relaybot is the anonymous 1-to-1 chat relay's main process: it
// wires every internal package together, starts the Telegram long-poll
// loop, and feeds classified updates into the router. Mirrors the
// teacher's cmd/wsserver — a single env-configured binary that owns the
// transport loop and a graceful shutdown path — generalized from a
// websocket accept loop to a Telegram getUpdates loop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/whisper/anonrelay/internal/adminflow"
	"github.com/whisper/anonrelay/internal/audit"
	"github.com/whisper/anonrelay/internal/events"
	"github.com/whisper/anonrelay/internal/matching"
	"github.com/whisper/anonrelay/internal/moderation"
	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/profile"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/ratelimit"
	"github.com/whisper/anonrelay/internal/router"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/sweeper"
	"github.com/whisper/anonrelay/internal/transport/telegram"
	"github.com/whisper/anonrelay/internal/userstate"
)

// config holds the env-configurable knobs: bot token, Redis address, NATS
// URL, database URL, metrics address, chat-timeout, max-queue-size and the
// admin allowlist. The per-user message rate, next-command rate, auto-ban
// threshold and auto-ban duration are not read from the environment; they
// are compiled-in constants of the ratelimit and moderation packages.
type config struct {
	BotToken       string
	RedisAddr      string
	NATSURL        string
	DatabaseURL    string
	MetricsAddr    string
	ChatTimeout    time.Duration
	MaxQueueSize   int64
	AdminIDs       map[string]bool
	MigrationsPath string
}

func loadConfig() config {
	cfg := config{
		RedisAddr:    "localhost:6379",
		MetricsAddr:  ":9090",
		ChatTimeout:  10 * time.Minute,
		MaxQueueSize: 0,
		AdminIDs:     make(map[string]bool),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ChatTimeout = d
		}
	}
	if v := os.Getenv("MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxQueueSize = n
		}
	}
	if v := os.Getenv("ADMIN_USER_IDS"); v != "" {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.AdminIDs[id] = true
			}
		}
	}
	migrationsPath, err := filepath.Abs("migrations")
	if err == nil {
		cfg.MigrationsPath = "file://" + migrationsPath
	}

	// RuleMessage and RuleNext windows come from the ratelimit package's own
	// defaults (spec.md's "per-user message rate, next-command rate"); they
	// are compiled-in rules rather than env vars because they gate
	// correctness invariants, not operational tuning.
	return cfg
}

func main() {
	cfg := loadConfig()
	if cfg.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	db := store.NewWithClient(rdb)

	state := userstate.New(db, cfg.ChatTimeout)
	q := queue.New(db, cfg.MaxQueueSize)
	profiles := profile.New(db)
	ratings := rating.New(db)
	bans := moderation.New(db)
	filter := moderation.NewFilter()
	limiter := ratelimit.NewLimiter(rdb)
	flows := adminflow.New(db)

	// --- NATS audit bus (optional) ---
	var bus *events.Bus
	if cfg.NATSURL != "" {
		natsCfg := events.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "relaybot"
		b, err := events.Connect(natsCfg)
		if err != nil {
			log.Printf("nats unavailable, running without an audit bus: %v", err)
		} else {
			bus = b
		}
	}

	pm := pairing.New(db, state, ratings, bus)
	eng := matching.New(db, q, profiles, ratings, bans, cfg.ChatTimeout)

	// --- PostgreSQL audit trail (optional) ---
	var auditStore *audit.Store
	if cfg.DatabaseURL != "" {
		if cfg.MigrationsPath != "" {
			if err := audit.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
				log.Printf("audit migrations: %v", err)
			} else {
				log.Printf("audit database migrations applied successfully")
			}
		}
		a, err := audit.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Printf("postgres unavailable, running without a durable audit trail: %v", err)
		} else {
			auditStore = a
		}
	}

	// --- Telegram transport ---
	tr, err := telegram.New(cfg.BotToken)
	if err != nil {
		log.Fatalf("failed to connect to Telegram: %v", err)
	}

	r := router.New(router.Deps{
		DB:        db,
		Transport: tr,
		Bans:      bans,
		Filter:    filter,
		Limiter:   limiter,
		State:     state,
		Queue:     q,
		Pairing:   pm,
		Matching:  eng,
		Profiles:  profiles,
		Ratings:   ratings,
		Flows:     flows,
		Audit:     auditStore,
		Bus:       bus,
		IsAdmin:   func(id string) bool { return cfg.AdminIDs[id] },
		PairTTL:   cfg.ChatTimeout,
	})

	// --- Metrics endpoint ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	// --- Inactivity sweeper, same process, own goroutine ---
	sw := sweeper.New(db, state, q, pm, tr, cfg.ChatTimeout)

	runCtx, stop := context.WithCancel(context.Background())
	go sw.Run(runCtx)

	log.Printf("Whisper relay bot starting")
	log.Printf("  redis_addr:    %s", cfg.RedisAddr)
	log.Printf("  nats_url:      %s", cfg.NATSURL)
	log.Printf("  database_url:  %s", maskedDBURL(cfg.DatabaseURL))
	log.Printf("  chat_timeout:  %s", cfg.ChatTimeout)
	log.Printf("  max_queue:     %d", cfg.MaxQueueSize)
	log.Printf("  admin_count:   %d", len(cfg.AdminIDs))

	updates := tr.Updates(runCtx)
	go func() {
		for u := range updates {
			go r.Dispatch(context.Background(), u)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, initiating graceful shutdown...", sig)

	stop()
	tr.Close()
	if bus != nil {
		bus.Close()
	}
	if auditStore != nil {
		auditStore.Close()
	}
	rdb.Close()
}

// maskedDBURL keeps credentials out of startup logs.
func maskedDBURL(raw string) string {
	if raw == "" {
		return ""
	}
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "***" + raw[at:]
}
