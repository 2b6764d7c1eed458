// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/registry"
	"github.com/hamed0406/pingwatch/internal/repo/postgres"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fail(e.Error())
		}
		os.Exit(1)
	}
	ok("API_ADDR=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (write routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys configured (read routes are open).")
	}
	if strings.Join(cfg.AllowedOrigins, ",") == "*" {
		warn("ALLOWED_ORIGINS is * (any browser origin may call the API).")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; observations are kept in memory only.")
	} else if pg, err := postgres.New(ctx, cfg.DatabaseURL, zap.NewNop()); err != nil {
		fail("DATABASE_URL unreachable: " + err.Error())
	} else {
		pg.Close()
		ok("DATABASE_URL reachable")
	}

	if cfg.TargetsFile != "" {
		if ts, err := registry.Load(cfg.TargetsFile); err != nil {
			for _, e := range multierr.Errors(err) {
				fail(e.Error())
			}
		} else {
			ok(fmt.Sprintf("TARGETS_FILE has %d valid targets", len(ts)))
		}
	}

	if cfg.NATSURL != "" {
		if nc, err := nats.Connect(cfg.NATSURL, nats.Timeout(5*time.Second)); err != nil {
			fail("NATS_URL unreachable: " + err.Error())
		} else {
			nc.Close()
			ok("NATS_URL reachable")
		}
	}
	if cfg.SlackWebhookURL == "" && cfg.NATSURL == "" {
		warn("no SLACK_WEBHOOK_URL or NATS_URL; only Telegram (if enabled via the API) will notify.")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
