package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modeldepot/depot/pkg/depot/catalog"
	"github.com/modeldepot/depot/pkg/transport/httpapi"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func runServe(addr string) error {
	v, err := newViper()
	if err != nil {
		return err
	}
	d, err := buildDeps(v)
	if err != nil {
		return err
	}

	cat := catalog.New(d.hubClient)

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	server := httpapi.New(httpapi.Config{
		Repo:                    d.repo,
		Manager:                 d.manager,
		Loader:                  d.loader,
		Catalog:                 cat,
		MaxConcurrentOperations: d.cfg.MaxConcurrentOperations,
		Logger:                  d.logger,
		ZapLogger:               zapLogger,
		Metrics:                 metrics,
	})

	httpServer := &http.Server{Addr: addr, Handler: server.Engine()}

	serveErr := make(chan error, 1)
	go func() {
		d.logger.WithField("addr", addr).Info("starting depotd HTTP server")
		fmt.Printf("listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigCh:
		d.logger.WithField("signal", sig.String()).Info("shutting down depotd")
	}

	var result *multierror.Error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server shutdown: %w", err))
	}

	d.manager.StopReconciler()

	if err := d.loader.Shutdown(); err != nil {
		result = multierror.Append(result, fmt.Errorf("adapter loader shutdown: %w", err))
	}

	return result.ErrorOrNil()
}
