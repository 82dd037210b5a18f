// Package redisbus consumes event streams from Redis Streams through a consumer
// group.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

const (
	newEntries     = ">"
	pendingEntries = "0"
	sourceIDField  = "dead_letter_source_id"
)

// Bus reads streams as one named consumer of a consumer group. A single client
// is shared by every stream; each blocking read holds its own pool connection,
// so one stream cannot starve another as long as the pool is larger than the
// number of streams.
type Bus struct {
	client           *redis.Client
	group            string
	consumer         string
	deadLetterSuffix string

	lk sync.Mutex
	// caughtUp records streams whose pending entries for this consumer have all
	// been re-read since startup.
	caughtUp map[string]bool
}

func New(client *redis.Client, group, consumer, deadLetterSuffix string) *Bus {
	return &Bus{
		client:           client,
		group:            group,
		consumer:         consumer,
		deadLetterSuffix: deadLetterSuffix,
		caughtUp:         make(map[string]bool),
	}
}

// Dial connects to a redis:// URL. minPoolSize should cover one blocking read per
// stream plus acks.
func Dial(ctx context.Context, url string, minPoolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.PoolSize < minPoolSize {
		opts.PoolSize = minPoolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (b *Bus) EnsureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, pendingEntries).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group %q on %q: %w", b.group, stream, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// ReadBatch first replays entries delivered to this consumer but never
// acknowledged, so a restart picks up where the last run stopped. Once none
// remain it reads new entries.
func (b *Bus) ReadBatch(ctx context.Context, stream string, count int, block time.Duration) ([]pipeline.Record, error) {
	b.lk.Lock()
	start := pendingEntries
	if b.caughtUp[stream] {
		start = newEntries
	}
	b.lk.Unlock()

	args := &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{stream, start},
		Count:    int64(count),
		Block:    block,
	}
	res, err := b.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		res, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from %q: %w", stream, err)
	}

	recs := recordsFromStreams(res)
	if start == pendingEntries && len(recs) == 0 {
		b.lk.Lock()
		b.caughtUp[stream] = true
		b.lk.Unlock()
	}
	return recs, nil
}

func (b *Bus) Ack(ctx context.Context, h pipeline.Handle) error {
	if err := b.client.XAck(ctx, h.Stream, b.group, h.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s on %q: %w", h.ID, h.Stream, err)
	}
	return nil
}

// DeadLetter appends the raw fields of a discarded record to the stream's
// dead-letter stream, tagged with the source entry id.
func (b *Bus) DeadLetter(ctx context.Context, rec pipeline.Record) error {
	values := make(map[string]any, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		values[k] = v
	}
	values[sourceIDField] = rec.Handle.ID

	target := rec.Handle.Stream + b.deadLetterSuffix
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: target, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter %s to %q: %w", rec.Handle.ID, target, err)
	}
	return nil
}

// recordsFromStreams flattens an XREADGROUP reply. Pending entries whose
// payload was trimmed from the stream come back with no values and decode as
// poison.
func recordsFromStreams(res []redis.XStream) []pipeline.Record {
	var recs []pipeline.Record
	for _, s := range res {
		for _, msg := range s.Messages {
			recs = append(recs, pipeline.Record{
				Handle: pipeline.Handle{Stream: s.Stream, ID: msg.ID},
				Fields: msg.Values,
			})
		}
	}
	return recs
}

func (b *Bus) Close() error {
	return b.client.Close()
}
