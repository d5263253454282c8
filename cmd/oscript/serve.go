package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thomasrohde/oscript/pkg/host"
)

func cmdServe(argv []string) int {
	const cmdUsage = "oscript serve [-l address]"
	opts, operands, ok := parseOpts(argv, "l:", cmdUsage)
	if !ok {
		return exitUsage
	}
	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}
	for _, opt := range opts {
		if opt.Option == 'l' {
			cfg.Listen = opt.Value
		}
	}
	if len(operands) != 0 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}

	logger := newLogger(cfg)
	h := host.New(newRuntime(cfg, logger), host.WithLogger(logger))
	srv := host.NewServer(h, host.ServerConfig{
		PruneInterval: cfg.CachePruneInterval,
		MaxIdle:       cfg.CachePruneInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(cfg.Listen)
	}()

	select {
	case err := <-errc:
		logger.Error().Err(err).Msg("server stopped")
		return exitUsage
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("shutdown")
		return exitRuntime
	}
	logger.Info().Msg("server stopped")
	return exitOK
}

func cmdDeploy(argv []string) int {
	const cmdUsage = "oscript deploy <file|file://uri>"
	_, operands, ok := parseOpts(argv, "", cmdUsage)
	if !ok {
		return exitUsage
	}
	if len(operands) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}
	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}
	res := host.New(newRuntime(cfg, newLogger(cfg))).Deploy(operands[0])
	code := printJSON(res)
	if res.Error != "" {
		return exitDiagnostics
	}
	return code
}
