package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spotex/params"
	"spotex/pkg/api"
	"spotex/pkg/exchange"
	"spotex/pkg/feed"
	"spotex/pkg/storage"
	"spotex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.DataDir, "err", err)
	}
	defer store.Close()

	// First-run balances; no-op for users that already exist.
	for _, su := range cfg.SeedUsers {
		if err := store.SeedUser(&storage.User{ID: su.ID, Fiat: su.Fiat, BTC: su.BTC}); err != nil {
			sugar.Fatalw("seed_user_failed", "user_id", su.ID, "err", err)
		}
	}

	hub := api.NewHub(sugar)
	publishers := feed.Multi{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publishers = append(publishers, kp)
		sugar.Infow("kafka_feed_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	ex, err := exchange.New(store, publishers, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	srv := api.NewServer(ex, hub, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()
	sugar.Infow("spotexd_started", "listen", cfg.ListenAddr, "data_dir", cfg.DataDir)

	<-ctx.Done()
	sugar.Info("shutting down")
}
