package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	sdkotel "go.opentelemetry.io/otel"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/internal/config"
	"github.com/AgentWireHQ/agentwire/observe"
	observeotel "github.com/AgentWireHQ/agentwire/observe/otel"
	"github.com/AgentWireHQ/agentwire/server"
	"github.com/AgentWireHQ/agentwire/session"
	"github.com/AgentWireHQ/agentwire/session/memory"
	sessionredis "github.com/AgentWireHQ/agentwire/session/redis"
	sessionsqlite "github.com/AgentWireHQ/agentwire/session/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Optional; local development keeps credentials in .env.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		log.Fatalf("agentwire: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := newStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	sweeper := session.NewSweeper(store,
		session.WithSweepSchedule(cfg.Sweep.Schedule),
		session.WithMaxPendingAge(cfg.Sweep.MaxPendingAge),
		session.WithMaxConversationAge(cfg.Sweep.MaxConversationAge),
	)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	sinks := []observe.Sink{observe.LogSink{}}
	if config.ParseBoolEnv("AGENTWIRE_OTEL", false) {
		sinks = append(sinks, observeotel.NewSink(sdkotel.GetTracerProvider()))
	}

	srv := server.NewServer(server.Config{
		Addr:              cfg.Addr,
		Engine:            engine.NewEchoEngine(),
		Store:             store,
		Observer:          observe.NewMultiSink(sinks...),
		ArtifactToolName:  cfg.Chat.ArtifactToolName,
		SourceToolName:    cfg.Chat.SourceToolName,
		InlineAnnotations: cfg.Chat.InlineAnnotations,
		KeepAliveInterval: cfg.Chat.KeepAliveInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func newStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sessionsqlite.New(cfg.SQLitePath)
	case config.BackendRedis:
		return sessionredis.New(cfg.RedisAddr,
			sessionredis.WithDB(cfg.RedisDB),
			sessionredis.WithPassword(cfg.RedisPassword),
		)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
