package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericvolp12/bsky-experiments/pkg/tracing"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericvolp12/eventsink/pkg/consumer"
	"github.com/ericvolp12/eventsink/pkg/handlers"
	"github.com/ericvolp12/eventsink/pkg/supervisor"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:    "eventsink",
		Usage:   "blockchain event stream to postgres sink",
		Version: "0.1.0",
	}

	defaults := consumer.DefaultOptions()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "bus",
			Usage:   "message bus to consume from (redis or kafka)",
			Value:   busRedis,
			EnvVars: []string{"EVENTSINK_BUS"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis:// url of the stream server, required with --bus=redis",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "comma separated kafka bootstrap servers, required with --bus=kafka",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "postgres connection string",
			Required: true,
			EnvVars:  []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "consumer-group",
			Usage:   "consumer group shared by every instance of the sink",
			Value:   "eventsink",
			EnvVars: []string{"EVENTSINK_CONSUMER_GROUP"},
		},
		&cli.StringFlag{
			Name:    "consumer-name",
			Usage:   "name of this instance within the group (defaults to the hostname)",
			EnvVars: []string{"EVENTSINK_CONSUMER_NAME"},
		},
		&cli.StringSliceFlag{
			Name:    "streams",
			Usage:   "stream bindings as kind or stream=kind (defaults to every kind on its own stream)",
			EnvVars: []string{"EVENTSINK_STREAMS"},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "max records read per batch",
			Value:   defaults.BatchSize,
			EnvVars: []string{"EVENTSINK_BATCH_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "block-timeout",
			Usage:   "how long a read waits for new records",
			Value:   defaults.BlockTimeout,
			EnvVars: []string{"EVENTSINK_BLOCK_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "failure-policy",
			Usage:   "what to do when an event fails to persist (retry or stop)",
			Value:   string(defaults.FailurePolicy),
			EnvVars: []string{"EVENTSINK_FAILURE_POLICY"},
		},
		&cli.DurationFlag{
			Name:    "retry-max-interval",
			Usage:   "cap on the backoff between retries",
			Value:   defaults.RetryMaxInterval,
			EnvVars: []string{"EVENTSINK_RETRY_MAX_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "transport-give-up",
			Usage:   "how long bus operations are retried before a consumer gives up (0 retries forever)",
			Value:   defaults.TransportGiveUp,
			EnvVars: []string{"EVENTSINK_TRANSPORT_GIVE_UP"},
		},
		&cli.StringFlag{
			Name:    "dead-letter-suffix",
			Usage:   "if set, undecodable records are copied to <stream><suffix> before being acknowledged",
			EnvVars: []string{"EVENTSINK_DEAD_LETTER_SUFFIX"},
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			Usage:   "addr to serve health and metrics on",
			Value:   ":6009",
			EnvVars: []string{"EVENTSINK_LISTEN_ADDR"},
		},
	}

	app.Action = Eventsink

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// Eventsink is the main function for eventsink
func Eventsink(cctx *cli.Context) error {
	ctx, cancel := context.WithCancel(cctx.Context)
	defer cancel()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	log.Info("starting eventsink")

	bindings, err := handlers.Default().Bind(cctx.StringSlice("streams"))
	if err != nil {
		return fmt.Errorf("failed to bind streams: %w", err)
	}

	opts, err := consumerOptions(cctx)
	if err != nil {
		return err
	}

	// Registers a tracer Provider globally if the exporter endpoint is set
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		log.Info("initializing tracer...")
		shutdown, err := tracing.InstallExportPipeline(ctx, "Eventsink", 0.01)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	consumerName := cctx.String("consumer-name")
	if consumerName == "" {
		consumerName, err = os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to default consumer name to hostname: %w", err)
		}
	}

	b, err := openBus(ctx, busConfig{
		Kind:             cctx.String("bus"),
		RedisURL:         cctx.String("redis-url"),
		KafkaBrokers:     cctx.String("kafka-brokers"),
		Group:            cctx.String("consumer-group"),
		Consumer:         consumerName,
		DeadLetterSuffix: cctx.String("dead-letter-suffix"),
		Streams:          len(bindings),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("failed to close bus", "error", err)
		}
	}()
	if cctx.String("dead-letter-suffix") != "" {
		opts.DeadLetter = b
	}

	pool, err := connectPostgres(ctx, cctx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	consumers := make([]*consumer.Consumer, 0, len(bindings))
	units := make([]supervisor.Unit, 0, len(bindings))
	for _, binding := range bindings {
		c := consumer.NewConsumer(log, binding.Stream, binding.Handler, b, pool, opts)
		consumers = append(consumers, c)
		units = append(units, c)
	}
	sup := supervisor.New(log, units...)

	e := echo.New()
	e.HideBanner = true
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, progressReport(consumers))
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	httpServer := &http.Server{
		Addr:    cctx.String("listen-addr"),
		Handler: e,
	}

	// Startup echo server
	shutdownEcho := make(chan struct{})
	echoShutdown := make(chan struct{})
	go func() {
		logger := log.With("source", "echo_server")

		logger.Info("echo server listening", "addr", cctx.String("listen-addr"))

		go func() {
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("failed to start echo server", "error", err)
			}
		}()
		<-shutdownEcho
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown echo server", "error", err)
		}
		logger.Info("echo server shut down")
		close(echoShutdown)
	}()

	supervisorDone := make(chan error, 1)
	go func() {
		supervisorDone <- sup.Run(ctx)
	}()

	// Trap SIGINT to trigger a shutdown.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
		log.Info("shutting down on signal")
	case <-ctx.Done():
		log.Info("shutting down on context done")
	}

	log.Info("shutting down, waiting for consumers to clean up...")
	cancel()
	runErr := <-supervisorDone
	close(shutdownEcho)
	<-echoShutdown

	if runErr != nil {
		log.Error("some consumers stopped with errors", "error", runErr)
		return runErr
	}
	log.Info("shut down successfully")

	return nil
}

func consumerOptions(cctx *cli.Context) (consumer.Options, error) {
	opts := consumer.DefaultOptions()

	policy, err := consumer.ParsePolicy(cctx.String("failure-policy"))
	if err != nil {
		return opts, err
	}
	if n := cctx.Int("batch-size"); n <= 0 {
		return opts, fmt.Errorf("batch-size must be positive, got %d", n)
	}

	opts.FailurePolicy = policy
	opts.BatchSize = cctx.Int("batch-size")
	opts.BlockTimeout = cctx.Duration("block-timeout")
	opts.RetryMaxInterval = cctx.Duration("retry-max-interval")
	opts.TransportGiveUp = cctx.Duration("transport-give-up")
	if opts.RetryInitialInterval > opts.RetryMaxInterval {
		opts.RetryInitialInterval = opts.RetryMaxInterval
	}
	return opts, nil
}

func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

type streamProgress struct {
	LastID          string    `json:"last_id"`
	LastProcessedAt time.Time `json:"last_processed_at"`
}

func progressReport(consumers []*consumer.Consumer) map[string]streamProgress {
	report := make(map[string]streamProgress, len(consumers))
	for _, c := range consumers {
		id, at := c.Progress.Get()
		report[c.Stream] = streamProgress{LastID: id, LastProcessedAt: at}
	}
	return report
}
