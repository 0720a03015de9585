package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nstolbov/zuluview/internal/config"
	"github.com/nstolbov/zuluview/internal/httpclient"
	"github.com/nstolbov/zuluview/internal/logger"
	"github.com/nstolbov/zuluview/internal/observability"
	"github.com/nstolbov/zuluview/internal/ogc"
	"github.com/nstolbov/zuluview/internal/server"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "gate",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting gateway",
		"addr", cfg.Addr,
		"version", Version,
		"wfs", cfg.WFSURL,
		"zulu", cfg.ZuluURL)

	wfs := ogc.New(cfg.WFSURL, httpclient.NewOutbound(), appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, appLog, wfs); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
