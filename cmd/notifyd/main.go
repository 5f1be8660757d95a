package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/handler"
	"github.com/kursadbilgin/notify-engine/internal/infra/postgresql/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "notifyd",
		Short:        "Notification delivery, retry and digest service",
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newProcessRetriesCmd(),
		newDigestCmd(),
		newMigrateCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, "serve")
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := migrations.Migrate(rt.db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			return runServer(ctx, rt)
		},
	}
}

func runServer(ctx context.Context, rt *runtime) error {
	svc, err := rt.services()
	if err != nil {
		return err
	}

	app, err := handler.NewApp(handler.Dependencies{
		Dispatch:    svc.dispatch,
		Inbox:       svc.inbox,
		Processor:   svc.processor,
		Digests:     svc.digests,
		DeadLetters: svc.deadLetters,
		Limiter:     svc.limiter,
		Metrics:     rt.metrics,
		ReadinessChecks: []handler.ReadinessCheck{
			handler.PostgresCheck(rt.sqlDB),
			handler.RedisCheck(rt.rdb),
			{Name: "rabbitmq", Ping: rt.mq.Ping},
		},
		Logger: rt.logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", rt.cfg.APIPort)
		rt.logger.Info("notify-engine api started", zap.String("address", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	case err := <-errCh:
		return err
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the retry processor loop, scheduled jobs and the intent consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, "worker")
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			scheduler, err := rt.jobScheduler(svc)
			if err != nil {
				return err
			}
			consumer, err := rt.intentConsumer(svc)
			if err != nil {
				return err
			}

			rt.logger.Info("notify-engine worker started",
				zap.Duration("retryInterval", rt.cfg.RetryScanInterval),
				zap.Int("intentConsumers", rt.cfg.IntentConsumers),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return svc.processor.Start(gctx) })
			g.Go(func() error { return scheduler.Start(gctx) })
			g.Go(func() error { return consumer.Start(gctx) })

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newProcessRetriesCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "process-retries",
		Short: "Run one pass over the due retry records and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), "process-retries")
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			summary, err := svc.processor.Process(cmd.Context(), batchSize)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "maximum records to process (default RETRY_BATCH_SIZE)")
	return cmd
}

func newDigestCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Run one digest pass for a period and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseDigestPeriod(period)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context(), "digest")
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			summary, err := svc.digests.Run(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "digest period: daily or weekly")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDatabaseRuntime(cmd.Context(), "migrate")
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := migrations.Migrate(rt.db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			rt.logger.Info("database migrations applied")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
