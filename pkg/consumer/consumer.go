package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

// ErrStopped is returned by Run when a handler failure ends a stop-policy consumer.
var ErrStopped = errors.New("consumer stopped on handler failure")

// Policy decides what a consumer does when a decoded event fails to persist.
type Policy string

const (
	// PolicyRetry retries the same record with capped exponential backoff until it
	// succeeds or the consumer shuts down. Later records wait behind it.
	PolicyRetry Policy = "retry"
	// PolicyStop terminates the consumer, leaving the record unacknowledged for
	// redelivery after a restart.
	PolicyStop Policy = "stop"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyRetry, PolicyStop:
		return p, nil
	}
	return "", fmt.Errorf("unknown handler failure policy %q (want %q or %q)", s, PolicyRetry, PolicyStop)
}

// Bus is the message bus as one consumer sees it. Consumer-group semantics (a
// durable position per stream and group) are the implementation's job.
type Bus interface {
	// EnsureGroup creates the consumption position for a stream if it is missing.
	EnsureGroup(ctx context.Context, stream string) error
	// ReadBatch returns up to count records in stream order, waiting at most block
	// for the first one. An empty batch is not an error.
	ReadBatch(ctx context.Context, stream string, count int, block time.Duration) ([]pipeline.Record, error)
	// Ack marks a record as processed so it is never redelivered.
	Ack(ctx context.Context, h pipeline.Handle) error
}

// DeadLetterer keeps a copy of records discarded as undecodable.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, rec pipeline.Record) error
}

// Options tune a consumer. Batch size and block timeout affect throughput only.
type Options struct {
	BatchSize            int
	BlockTimeout         time.Duration
	FailurePolicy        Policy
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// TransportGiveUp bounds how long bus operations are retried before the
	// consumer gives up. Zero retries forever.
	TransportGiveUp time.Duration
	// DeadLetter is optional.
	DeadLetter DeadLetterer
}

func DefaultOptions() Options {
	return Options{
		BatchSize:            100,
		BlockTimeout:         5 * time.Second,
		FailurePolicy:        PolicyRetry,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     30 * time.Second,
		TransportGiveUp:      5 * time.Minute,
	}
}

// Consumer drains one stream into one handler.
type Consumer struct {
	Stream   string
	Progress *Progress

	handler pipeline.Handler
	bus     Bus
	db      pipeline.Execer
	opts    Options
	logger  *slog.Logger

	read            prometheus.Counter
	acked           prometheus.Counter
	decodeFailed    prometheus.Counter
	handlerFailed   prometheus.Counter
	handleDuration  prometheus.Observer
	lastProcessedAt prometheus.Gauge
	lastBlockHeight prometheus.Gauge
}

var tracer = otel.Tracer("consumer")

// NewConsumer creates a consumer. The bus and db are shared with sibling
// consumers and must be safe for concurrent use.
func NewConsumer(
	logger *slog.Logger,
	stream string,
	handler pipeline.Handler,
	bus Bus,
	db pipeline.Execer,
	opts Options,
) *Consumer {
	return &Consumer{
		Stream:   stream,
		Progress: &Progress{},
		handler:  handler,
		bus:      bus,
		db:       db,
		opts:     opts,
		logger:   logger.With("component", "consumer", "stream", stream),

		read:            recordsReadCounter.WithLabelValues(stream),
		acked:           recordsAckedCounter.WithLabelValues(stream),
		decodeFailed:    decodeFailuresCounter.WithLabelValues(stream),
		handlerFailed:   handlerFailuresCounter.WithLabelValues(stream),
		handleDuration:  handleDurationHistogram.WithLabelValues(stream),
		lastProcessedAt: lastProcessedAtGauge.WithLabelValues(stream),
		lastBlockHeight: lastBlockHeightGauge.WithLabelValues(stream),
	}
}

func (c *Consumer) Name() string { return c.Stream }

// Run consumes until ctx is cancelled, returning nil on shutdown. A non-nil
// error means this stream gave up: the bus stayed unreachable past the give-up
// window, or a stop-policy handler failed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting consumer", "kind", c.handler.Kind(), "policy", c.opts.FailurePolicy)

	err := c.retryTransport(ctx, "ensure_group", func() error {
		return c.bus.EnsureGroup(ctx, c.Stream)
	})
	if err != nil {
		if ctx.Err() != nil {
			return c.shutdown()
		}
		return fmt.Errorf("failed to prepare stream %q: %w", c.Stream, err)
	}

	for {
		if ctx.Err() != nil {
			return c.shutdown()
		}

		var batch []pipeline.Record
		err := c.retryTransport(ctx, "read_batch", func() error {
			var err error
			batch, err = c.bus.ReadBatch(ctx, c.Stream, c.opts.BatchSize, c.opts.BlockTimeout)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.shutdown()
			}
			return fmt.Errorf("failed to read from stream %q: %w", c.Stream, err)
		}

		for _, rec := range batch {
			// The rest of the batch stays pending and is redelivered after restart.
			if ctx.Err() != nil {
				break
			}
			if err := c.processRecord(ctx, rec); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) shutdown() error {
	lastID, lastAt := c.Progress.Get()
	c.logger.Info("consumer shut down", "last_id", lastID, "last_processed_at", lastAt)
	return nil
}

// processRecord runs decode, handle and ack for one record. It returns an error
// only when the consumer must stop.
func (c *Consumer) processRecord(ctx context.Context, rec pipeline.Record) error {
	// Shutdown must not interrupt a record halfway: handle and ack run on a
	// context that outlives ctx.
	work, span := tracer.Start(context.WithoutCancel(ctx), "ProcessRecord")
	defer span.End()
	span.SetAttributes(attribute.String("stream", c.Stream), attribute.String("entry_id", rec.Handle.ID))

	c.read.Inc()
	log := c.logger.With("entry_id", rec.Handle.ID)

	ev, err := c.handler.Decode(rec.Fields)
	if err != nil {
		c.decodeFailed.Inc()
		log.Error("failed to decode record, discarding", "error", err, "fields", loggableFields(rec.Fields))
		if c.opts.DeadLetter != nil {
			if err := c.opts.DeadLetter.DeadLetter(work, rec); err != nil {
				log.Error("failed to dead-letter record", "error", err)
			}
		}
		return c.ack(work, rec)
	}
	span.SetAttributes(attribute.Int64("block_height", int64(ev.BlockHeight())))

	handled, err := c.handle(ctx, work, rec, ev, log)
	if err != nil {
		return err
	}
	if !handled {
		return nil
	}
	c.lastBlockHeight.Set(float64(ev.BlockHeight()))
	return c.ack(work, rec)
}

// loggableFields renders raw byte values as text so the JSON log shows the
// record content instead of base64.
func loggableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[k] = v
	}
	return out
}

// handle applies the failure policy. It reports handled=false without error when
// shutdown interrupts a retry; the record then stays unacknowledged.
func (c *Consumer) handle(ctx, work context.Context, rec pipeline.Record, ev pipeline.Event, log *slog.Logger) (bool, error) {
	attempt := func() error {
		start := time.Now()
		err := c.handler.Handle(work, ev, c.db)
		c.handleDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.handlerFailed.Inc()
			log.Error("failed to handle event", "error", err, "block_height", ev.BlockHeight())
		}
		return err
	}

	if c.opts.FailurePolicy == PolicyStop {
		if err := attempt(); err != nil {
			return false, fmt.Errorf("%w: stream %q entry %s: %w", ErrStopped, c.Stream, rec.Handle.ID, err)
		}
		return true, nil
	}

	// No elapsed-time limit, so only ctx ends this early.
	err := backoff.RetryNotify(attempt, backoff.WithContext(c.newBackOff(0), ctx), func(_ error, wait time.Duration) {
		log.Warn("retrying event", "retry_in", wait)
	})
	if err != nil {
		log.Warn("abandoning unacknowledged record on shutdown", "error", err)
		return false, nil
	}
	return true, nil
}

func (c *Consumer) ack(ctx context.Context, rec pipeline.Record) error {
	err := c.retryTransport(ctx, "ack", func() error {
		return c.bus.Ack(ctx, rec.Handle)
	})
	if err != nil {
		return fmt.Errorf("failed to acknowledge %s/%s: %w", rec.Handle.Stream, rec.Handle.ID, err)
	}

	now := time.Now()
	c.acked.Inc()
	c.Progress.Update(rec.Handle.ID, now)
	c.lastProcessedAt.Set(float64(now.Unix()))
	return nil
}

func (c *Consumer) retryTransport(ctx context.Context, op string, fn func() error) error {
	retries := transportRetriesCounter.WithLabelValues(c.Stream, op)
	return backoff.RetryNotify(fn, backoff.WithContext(c.newBackOff(c.opts.TransportGiveUp), ctx), func(err error, wait time.Duration) {
		retries.Inc()
		c.logger.Warn("bus operation failed, retrying", "op", op, "error", err, "retry_in", wait)
	})
}

func (c *Consumer) newBackOff(maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitialInterval
	b.MaxInterval = c.opts.RetryMaxInterval
	b.MaxElapsedTime = maxElapsed
	return b
}
