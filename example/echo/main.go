// Command echo serves framed messages over TCP and sends each one back.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/framesock"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	addrFlag := flag.String("addr", "", "listen address, overrides the config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		newLogger(os.Stderr, defaultConfig().LogLevel).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("echo server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func run(ctx context.Context, cfg config, logger framesock.Logger) error {
	addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "resolve addr")
	}

	driver, err := framesock.NewDriver(newEchoHandler(logger),
		framesock.DriverWorkersOption(cfg.Workers),
		framesock.DriverPollIntervalOption(cfg.PollInterval),
		framesock.DriverLoggerOption(logger),
	)
	if err != nil {
		return err
	}

	server, err := framesock.New(addr,
		framesock.ServerLoggerOption(logger),
		framesock.ServerShutdownTimeoutOption(cfg.ShutdownTimeout),
		framesock.ServerConnOptions(
			framesock.MessageMaxSize(cfg.MaxMessageSize),
			framesock.LoggerOption(logger),
		),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	group, child := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(child, driver)
	})
	group.Go(func() error {
		return driver.Run(child)
	})
	return group.Wait()
}
