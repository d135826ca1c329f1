package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"imgdash/internal/app"
	"imgdash/internal/logging"
	"imgdash/internal/otel"
	"imgdash/internal/version"
)

func runServer(args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printHelp(stdout, defaultConfigValues())
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Fprintln(stdout, version.GetVersionInfo().String())
		return 0
	}

	logger := logging.NewLogger(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel)
	logVersionInfo(logger)
	if cfg.Verbose {
		logStartupConfig(logger, cfg)
	}
	if len(cfg.UnknownConfigKeys) > 0 {
		logger.Warn("unknown config keys ignored", map[string]string{
			"config": cfg.ConfigPath,
			"keys":   strings.Join(cfg.UnknownConfigKeys, ","),
		})
	}

	built, err := app.Build(app.BuildOptions{
		Root:           cfg.Root,
		Logger:         logger,
		Debounce:       cfg.Debounce,
		MaxWatches:     cfg.MaxWatches,
		AllowedOrigins: cfg.AllowedOrigins,
		SelectRate:     cfg.SelectRate,
	})
	if err != nil {
		var buildErr app.BuildError
		message := "app build failed"
		if errors.As(err, &buildErr) {
			switch buildErr.Stage {
			case app.StageOpenRoot:
				message = "root directory unavailable"
			case app.StageWatchRoot:
				message = "root watch unavailable"
			}
		}
		logger.Error(message, map[string]string{
			"root":  cfg.Root,
			"error": err.Error(),
		})
		fmt.Fprintf(stderr, "%s: %v\n", message, err)
		return 1
	}

	listener, port, err := listen(cfg.Host, cfg.Port)
	if err != nil {
		logger.Error("listen failed", map[string]string{
			"host":  cfg.Host,
			"port":  strconv.Itoa(cfg.Port),
			"error": err.Error(),
		})
		_ = built.Close()
		return 1
	}

	shutdownTelemetry, err := otel.SetupSDK(context.Background(), otel.SDKOptions{
		Endpoint:           cfg.OTelEndpoint,
		ServiceVersion:     version.Version,
		ResourceAttributes: cfg.OTelResourceAttributes,
		Logger:             logger,
	})
	if err != nil {
		logger.Warn("telemetry unavailable", map[string]string{
			"error": err.Error(),
		})
		shutdownTelemetry = nil
	}

	server := newHTTPServer(built.Handler)
	logger.Info("imgdash listening", map[string]string{
		"addr":    listener.Addr().String(),
		"port":    strconv.Itoa(port),
		"root":    built.Sandbox.Root(),
		"version": version.Version,
	})

	stopContext, stop := context.WithCancel(context.Background())
	defer stop()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopWatching := watchShutdownSignals(logger, stop, signals, func() {
		os.Exit(1)
	})
	defer stopWatching()

	coordinator := newShutdownCoordinator(logger)
	coordinator.Add("session", built.CloseSession)
	coordinator.Add("root-watcher", built.CloseRootWatcher)
	coordinator.Add("bus", built.CloseBus)
	coordinator.Add("telemetry", shutdownTelemetry)

	runner := &ServerRunner{
		Logger:          logger,
		ShutdownTimeout: httpServerShutdownTimeout,
	}
	serveErr := runner.Run(stopContext, ManagedServer{
		Name: "http",
		Serve: func() error {
			return server.Serve(listener)
		},
		Shutdown: server.Shutdown,
	})

	shutdownContext, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancel()
	if err := coordinator.Run(shutdownContext); err != nil {
		logger.Warn("shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}
	if serveErr != nil {
		return 1
	}
	logger.Info("imgdash stopped", nil)
	return 0
}
