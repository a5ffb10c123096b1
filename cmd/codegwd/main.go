package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"codegw/internal/config"
	"codegw/internal/gateway"
	"codegw/internal/httpapi"
	"codegw/internal/proxy"
	"codegw/internal/registry"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8008"
	if v := os.Getenv("CODEGW_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultConfig := "codegw.yaml"
	if v := os.Getenv("CODEGW_CONFIG"); v != "" {
		defaultConfig = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8008")
	configPath := flag.String("config", defaultConfig, "Path to the config file (.yaml/.json/.toml)")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if cfg.LogLevel != "" {
		lvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("bad log level")
		}
		log = log.Level(lvl)
	}
	if cfg.Addr != "" && *addr == defaultAddr && os.Getenv("CODEGW_ADDR") == "" {
		*addr = cfg.Addr
	}

	db, err := registry.Load(cfg.ModelsDB)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ModelsDB).Msg("failed to load models db")
	}

	queue := gateway.NewMemQueue(db.Names())
	gw := gateway.New(queue, db, log, gateway.Config{
		StreamTimeout: time.Duration(cfg.StreamTimeoutSeconds) * time.Second,
		ChatDoneDelay: time.Duration(cfg.ChatDoneDelayMS) * time.Millisecond,
	})
	px := proxy.New(proxy.Config{
		CloudEnabled: cfg.Cloud.Enabled,
		CloudBaseURL: cfg.Cloud.BaseURL,
		CloudAPIKey:  cfg.Cloud.APIKey(),
		CloudModels:  cfg.Cloud.Models,
		LocalBaseURL: cfg.LocalBackendURL,
	}, log)

	mux := httpapi.NewMux(httpapi.Deps{
		Gateway:      gw,
		Proxy:        px,
		Models:       db,
		Log:          log,
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
	})
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Info().Str("addr", *addr).Str("models_db", cfg.ModelsDB).Msg("codegwd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}
