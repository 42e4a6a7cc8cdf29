// Command bridge runs the Matrix/Mycelium federation bridge as a
// standalone HTTP process: it loads configuration from the
// environment, wires the routing and transport components, and serves
// the control surface until signaled to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/mycelium-matrix/federation-bridge/internal/config"
	"github.com/mycelium-matrix/federation-bridge/internal/dispatcher"
	"github.com/mycelium-matrix/federation-bridge/internal/httpapi"
	"github.com/mycelium-matrix/federation-bridge/internal/logging"
	"github.com/mycelium-matrix/federation-bridge/internal/matrixtransport"
	"github.com/mycelium-matrix/federation-bridge/internal/overlaytransport"
	"github.com/mycelium-matrix/federation-bridge/internal/pending"
	"github.com/mycelium-matrix/federation-bridge/internal/routetable"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	logger, err := logging.New()
	if err != nil {
		return errors.Wrap(err, "constructing logger")
	}

	logger.LogInfo("starting federation bridge",
		"server_host", cfg.ServerHost, "server_port", cfg.ServerPort,
		"matrix_homeserver_url", cfg.MatrixHomeserverURL,
		"mycelium_enabled", cfg.MyceliumEnabled)

	if cfg.MatrixServerName == "" {
		serverName, err := config.DiscoverServerName(cfg.MatrixHomeserverURL, logger)
		if err != nil {
			logger.LogWarn("matrix server name discovery failed, continuing without it", "error", err.Error())
		} else {
			cfg.MatrixServerName = serverName
			logger.LogInfo("discovered matrix server name", "server_name", serverName)
		}
	}

	routes := routetable.New()
	pendingCalls := pending.New()

	matrix := matrixtransport.New(cfg.MatrixHomeserverURL, cfg.FederationTimeout, logger)

	var overlay dispatcher.OverlayTransport
	if cfg.MyceliumEnabled {
		rateLimit := overlaytransport.RateLimitConfig{
			Enabled:   true,
			Rate:      cfg.RateLimitPerSecond,
			BurstSize: cfg.RateLimitBurst,
		}
		overlay = overlaytransport.New(cfg.MyceliumAPIURL, cfg.FederationTimeout, rateLimit, logger)
	}

	d := dispatcher.New(routes, pendingCalls, matrix, overlay, cfg.MyceliumEnabled, cfg.FederationTimeout, logger)
	router := httpapi.New(d, routes, logger)

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.FederationTimeout,
		WriteTimeout: cfg.FederationTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.LogInfo("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")
	case sig := <-shutdown:
		logger.LogInfo("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "graceful shutdown")
		}
		logger.LogInfo("shutdown complete")
	}

	return nil
}
