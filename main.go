package main

import (
	"context"
	"flag"
	"fmt"
	"hedgedoc-server/config"
	"hedgedoc-server/server"
	"hedgedoc-server/stores"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func waitForShutdown() {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("shutting down")
}

func main() {
	config.LoadEnvFiles()

	logLevel := flag.String("loglevel", "", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", "", "Set the server listen address (overrides SOCKET_PORT)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx := context.Background()
	documentStore, err := stores.GetStore(ctx, cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open document store")
	}

	if cfg.SeedWelcome {
		if _, err := stores.SeedWelcome(ctx, documentStore); err != nil {
			logrus.WithError(err).Warn("failed to seed welcome document")
		}
	}

	srv := server.New(cfg, documentStore)
	if err := srv.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}

	waitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown error")
	}
	if err := documentStore.Close(); err != nil {
		logrus.WithError(err).Error("failed to close document store")
	}
	logrus.Info("server stopped")
}
