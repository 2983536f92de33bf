// main package for the podcast-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/server"
	"github.com/book-expert/podcast-service/internal/worker"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "podcast-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func connectNATS(url string, log *logger.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(
		url,
		nats.Name("podcast-service"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, disconnectErr error) {
			if disconnectErr != nil {
				log.Warn("NATS disconnected: %v", disconnectErr)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("NATS reconnected to %s", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return natsConnection, jetstreamContext, nil
}

func run() error {
	// Bootstrap logger until the configured log directory is known.
	bootstrapLog, err := logger.New(os.TempDir(), "podcast-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsConnection, jetstreamContext, err := connectNATS(cfg.NATS.URL, finalLog)
	if err != nil {
		finalLog.Error("%v", err)

		return err
	}
	defer natsConnection.Close()

	svc, err := buildService(ctx, cfg, jetstreamContext, finalLog)
	if err != nil {
		finalLog.Error("Failed to assemble service: %v", err)

		return err
	}
	defer svc.close()

	jobWorker, err := worker.NewNatsWorker(jetstreamContext, worker.Config{
		Stream:       cfg.NATS.JobsStream,
		Subject:      cfg.NATS.JobsSubject,
		Durable:      cfg.NATS.JobsConsumer,
		AckWait:      cfg.AckWait(),
		FetchTimeout: 0,
		NakDelay:     0,
		MaxInFlight:  cfg.NATS.MaxInFlight,
		MaxDeliver:   0,
	}, svc.coordinator, finalLog)
	if err != nil {
		finalLog.Error("Failed to create worker: %v", err)

		return fmt.Errorf("failed to create worker: %w", err)
	}

	httpServer := server.New(cfg.Server.Host, cfg.Server.Port, server.Dependencies{
		Jobs:      svc.coordinator,
		Statuses:  svc.statuses,
		Extractor: svc.extractor,
		Checkers:  map[string]server.Checker{"nats": server.NATSChecker{Conn: natsConnection}},
	}, finalLog)

	finalLog.System("Podcast-Service initialized. Consuming jobs on subject %s, serving HTTP on %s",
		cfg.NATS.JobsSubject, cfg.ListenAddress())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return jobWorker.Run(groupCtx) })
	group.Go(func() error { return httpServer.Run(groupCtx) })

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		finalLog.Error("Service stopped with error: %v", err)

		return err
	}

	finalLog.System("Podcast-Service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
