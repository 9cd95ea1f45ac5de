package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// NewStartCommand returns the command running the service until it is
// interrupted.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve the HTTP API and run background tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStart(ctx, cmd, opts)
		},
	}
}

func runStart(ctx context.Context, cmd *cobra.Command, opts *RootOptions) error {
	conf, err := loadConfiguration(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "configuration")
	}
	logger, err := newLogger(conf.Log, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	ctx = superpool.WithLogger(ctx, logger)

	svc, err := newService(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("cannot release resources", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.scheduler.Run(gctx, conf.Cron.Resolution)
	})
	g.Go(func() error {
		logger.Info("serving HTTP API", "addr", conf.Server.Addr)
		return api.Serve(gctx, conf.Server, api.NewServer(conf.Server, svc.router))
	})
	err = g.Wait()
	logger.Info("stopped", "err", err)
	return err
}
