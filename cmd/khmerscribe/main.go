package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jo-hoe/khmerscribe/internal/common"
	appcfg "github.com/jo-hoe/khmerscribe/internal/config"
	"github.com/jo-hoe/khmerscribe/internal/llm"
	"github.com/jo-hoe/khmerscribe/internal/llm/aiproxy"
	llmmock "github.com/jo-hoe/khmerscribe/internal/llm/mock"
	"github.com/jo-hoe/khmerscribe/internal/media"
	mediamock "github.com/jo-hoe/khmerscribe/internal/media/mock"
	"github.com/jo-hoe/khmerscribe/internal/media/youtube"
	"github.com/jo-hoe/khmerscribe/internal/pipeline"
	"github.com/jo-hoe/khmerscribe/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $KHMERSCRIBE_CONFIG or ./config.yaml)")
	flag.Parse()

	// Load config
	cfg, err := appcfg.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Logger
	level, _ := appcfg.ParseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Downloader
	var downloader media.Downloader
	switch cfg.Download.Provider {
	case common.ProviderYouTube:
		downloader = youtube.New(logger, cfg.Download)
	case common.ProviderMock:
		downloader = mediamock.New(0)
	default:
		logger.Error("unsupported download provider", "provider", cfg.Download.Provider)
		os.Exit(1)
	}

	// LLM client
	var llmClient llm.Client
	switch cfg.LLM.Provider {
	case common.ProviderAIProxy:
		llmClient = aiproxy.New(cfg.LLM.AIProxy)
	case common.ProviderMock:
		llmClient = llmmock.New(cfg.LLM.Mock)
	default:
		logger.Error("unsupported llm provider", "provider", cfg.LLM.Provider)
		os.Exit(1)
	}

	prompts, err := pipeline.NewPrompts(cfg.Prompts.Clean, cfg.Prompts.Summarize, cfg.Prompts.Language)
	if err != nil {
		logger.Error("parse prompts", "err", err)
		os.Exit(1)
	}
	p := pipeline.New(logger, downloader, llmClient, llmClient, prompts)

	// HTTP server
	httpSrv := server.NewHTTPServer(&server.Service{
		Log:      logger,
		Cfg:      cfg,
		Pipeline: p,
	})

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			"address", cfg.Server.Addr,
			"download_provider", cfg.Download.Provider,
			"llm_provider", cfg.LLM.Provider,
			"language", prompts.Language())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown; open streams get the grace period to finish.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("server stopped")
}
