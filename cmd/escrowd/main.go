package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jobescrow/config"
	"jobescrow/escrow"
	"jobescrow/events"
	"jobescrow/fetch"
	"jobescrow/gateway"
	"jobescrow/judge"
	"jobescrow/observability/logging"
	"jobescrow/state"
	"jobescrow/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "escrowd.toml", "path to the service configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("escrowd", cfg.Environment, cfg.LogFile)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "escrow"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	judgeClient, err := judge.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.Evaluation.Model)
	if err != nil {
		logger.Error("configure judge", "error", err)
		os.Exit(1)
	}
	judgeClient.SetTimeout(cfg.Evaluation.JudgeTimeout.Duration)
	judgeClient.SetMaxTokens(cfg.Evaluation.MaxTokens)

	recorder := events.NewRecorder(cfg.EventHistory)

	engine := escrow.NewEngine()
	engine.SetState(state.NewManager(db))
	engine.SetEmitter(recorder)
	engine.SetFetcher(fetch.NewClient(cfg.Evaluation.FetchTimeout.Duration, cfg.Evaluation.FetchMaxBytes))
	engine.SetJudge(judgeClient)
	engine.SetContentLimit(cfg.Evaluation.ContentLimit)

	server := gateway.New(gateway.Config{
		Engine:   engine,
		Recorder: recorder,
		Logger:   logger,
		RateLimit: gateway.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server,
	}

	go func() {
		logger.Info("escrow service listening", "address", cfg.ListenAddress, "model", judgeClient.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down escrow service")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
