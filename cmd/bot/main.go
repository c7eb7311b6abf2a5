package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tgcast/internal/broadcast"
	"tgcast/internal/config"
	"tgcast/internal/schedule"
	"tgcast/internal/subscriber"
	"tgcast/internal/transport/telegram"
	"tgcast/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	log := logx.NewConsole(cfg.Log.Level)

	store, err := subscriber.Open(subscriber.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	}, log.With(logx.String("svc", "subscriber")))
	if err != nil {
		log.Error("store open failed", logx.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, log.With(logx.String("svc", "telegram")))
	if err != nil {
		log.Error("telegram adapter failed", logx.Err(err))
		os.Exit(1)
	}

	engine := broadcast.New(store, adapter, broadcastConfig(cfg), log.With(logx.String("svc", "broadcast")))

	sched := schedule.New(engine, schedule.NewTimerBackend(), schedule.Config{
		OnComplete: func(taskID string, result *broadcast.Result) {
			log.Info("scheduled broadcast done",
				logx.String("task", taskID),
				logx.Int("successful", result.Successful),
				logx.Int("failed", result.Failed),
				logx.Float64("success_rate", result.SuccessRate()))
		},
		OnError: func(taskID string, err error) {
			log.Error("scheduled broadcast error", logx.String("task", taskID), logx.Err(err))
		},
	}, log.With(logx.String("svc", "schedule")))
	defer sched.Close()

	adapter.Start(ctx, telegram.Hooks{
		Seen: func(ctx context.Context, userID int64, fullName, username, langCode string) {
			if _, created, err := subscriber.Upsert(ctx, store, userID, fullName, username, langCode); err != nil {
				log.Warn("subscriber upsert failed", logx.Int64("user", userID), logx.Err(err))
			} else if created {
				log.Info("subscriber registered", logx.Int64("user", userID))
			}
		},
		StateChange: func(ctx context.Context, userID int64, active bool) {
			state := subscriber.StateKicked
			if active {
				state = subscriber.StateActive
			}
			if _, err := subscriber.SetState(ctx, store, userID, state); err != nil {
				log.Warn("subscriber state update failed", logx.Int64("user", userID), logx.Err(err))
			}
		},
	})

	go func() {
		if err := config.Watch(ctx, cfgPath, log.With(logx.String("svc", "config")), func(c config.Config) {
			engine.Apply(broadcastConfig(c))
		}); err != nil {
			log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	log.Info("tgcast started")
	<-ctx.Done()
	adapter.Stop()
}

func broadcastConfig(cfg config.Config) broadcast.Config {
	return broadcast.Config{
		MessageDelay:  cfg.Broadcast.MessageDelay,
		MaxRetries:    cfg.Broadcast.MaxRetries,
		RetryDelay:    cfg.Broadcast.RetryDelay,
		ProgressEvery: cfg.Broadcast.ProgressEvery,
	}
}
