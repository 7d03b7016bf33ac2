// Command client runs the sync engine headless and logs every snapshot it applies.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-sync/internal/backend"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/identity"
	"chat-sync/internal/syncer"
	"chat-sync/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(logger.Options{}).Fatal("Failed to load configuration", "error", err)
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Fatal("Sync client failed", "error", err)
	}
}

// run syncs until ctx is done. Every resource it opens is released before it returns.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	id, err := identity.NewTokenProvider(cfg.Sync.Token)
	if err != nil {
		return fmt.Errorf("invalid SYNC_TOKEN: %w", err)
	}
	if _, ok := id.Current(ctx); !ok {
		log.Warn("SYNC_TOKEN is empty, nothing to sync")
		return nil
	}

	client, err := backend.New(backend.Options{
		BaseURL: cfg.Sync.BaseURL,
		Rate:    cfg.Sync.RequestRate,
		Burst:   cfg.Sync.RequestBurst,
		Timeout: cfg.Sync.RequestTimeout,
		Logger:  log,
	}, id)
	if err != nil {
		return fmt.Errorf("invalid SYNC_BASE_URL: %w", err)
	}

	source, cleanup, err := changeSource(cfg, client, log)
	if err != nil {
		return fmt.Errorf("set up change source: %w", err)
	}
	defer cleanup()

	engine := syncer.New(client, id, source, syncer.Config{PollInterval: cfg.Sync.PollInterval, Logger: log})
	engine.OnUpdate(func(s syncer.Snapshot) {
		log.Info("Snapshot applied",
			"seq", s.Seq,
			"users", len(s.Users),
			"friends", len(s.Friends),
			"pendingIn", len(engine.PendingIncoming()),
			"pendingOut", len(engine.PendingOutgoing()),
			"messages", len(s.Messages),
		)
	})

	if err := engine.Start(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("start sync engine: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down sync client")
	return engine.Close()
}

func changeSource(cfg *config.Config, client *backend.Client, log *logger.Logger) (changefeed.Source, func(), error) {
	noop := func() {}
	switch cfg.Sync.ChangeSource {
	case "", "websocket":
		return &changefeed.WebSocketSource{
			URL:            websocketURL(client.BaseURL()),
			Token:          cfg.Sync.Token,
			ReconnectDelay: cfg.Sync.ReconnectDelay,
			Log:            log,
		}, noop, nil
	case "redis":
		rc, err := database.NewRedisConnection(&cfg.Redis, log)
		if err != nil {
			return nil, noop, err
		}
		return &changefeed.RedisSource{Client: rc.GetClient(), Log: log}, func() { rc.Close() }, nil
	case "kafka":
		return &changefeed.KafkaSource{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
			Log:     log,
		}, noop, nil
	case "none":
		return nil, noop, nil
	default:
		log.Warn("Unknown change source, falling back to polling only", "source", cfg.Sync.ChangeSource)
		return nil, noop, nil
	}
}

// websocketURL turns http(s)://host/api/v1 into ws(s)://host/api/v1/ws.
func websocketURL(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}
