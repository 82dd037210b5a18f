// Package kafkabus consumes event streams from Kafka topics. A stream id is a
// topic name and the consumer group is the Kafka group id. Acknowledgment is a
// manual offset commit.
package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/goccy/go-json"

	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

// rawValueField holds a message value that is not a JSON object, so the
// decoder reports it instead of losing it.
const rawValueField = "value"

// Bus keeps one Kafka consumer per stream, so streams never share a poll loop.
// Ordering is per partition.
type Bus struct {
	brokers          string
	group            string
	deadLetterSuffix string

	lk        sync.Mutex
	consumers map[string]*kafka.Consumer
	producer  *kafka.Producer
}

func New(brokers, group, deadLetterSuffix string) *Bus {
	return &Bus{
		brokers:          brokers,
		group:            group,
		deadLetterSuffix: deadLetterSuffix,
		consumers:        make(map[string]*kafka.Consumer),
	}
}

func (b *Bus) EnsureGroup(ctx context.Context, stream string) error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if _, ok := b.consumers[stream]; ok {
		return nil
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  b.brokers,
		"group.id":           b.group,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer for %q: %w", stream, err)
	}
	if err := c.Subscribe(stream, nil); err != nil {
		c.Close()
		return fmt.Errorf("failed to subscribe to %q: %w", stream, err)
	}
	b.consumers[stream] = c
	return nil
}

func (b *Bus) consumer(stream string) (*kafka.Consumer, error) {
	b.lk.Lock()
	defer b.lk.Unlock()
	c, ok := b.consumers[stream]
	if !ok {
		return nil, fmt.Errorf("no kafka consumer for %q", stream)
	}
	return c, nil
}

// messageReader is the part of a kafka consumer a read needs.
type messageReader interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
}

func (b *Bus) ReadBatch(ctx context.Context, stream string, count int, block time.Duration) ([]pipeline.Record, error) {
	c, err := b.consumer(stream)
	if err != nil {
		return nil, err
	}
	return drain(ctx, c, stream, count, block)
}

// drain waits up to block for the first message, then takes whatever is
// already buffered up to count.
func drain(ctx context.Context, r messageReader, stream string, count int, block time.Duration) ([]pipeline.Record, error) {
	var recs []pipeline.Record
	wait := block
	for len(recs) < count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := r.ReadMessage(wait)
		if err != nil {
			if isTimeout(err) {
				break
			}
			if len(recs) > 0 {
				// Return what was read; the error resurfaces on the next call.
				break
			}
			return nil, fmt.Errorf("failed to read from %q: %w", stream, err)
		}
		recs = append(recs, recordFromMessage(stream, msg))
		wait = 0
	}
	return recs, nil
}

func isTimeout(err error) bool {
	var kerr kafka.Error
	return errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut
}

func (b *Bus) Ack(ctx context.Context, h pipeline.Handle) error {
	c, err := b.consumer(h.Stream)
	if err != nil {
		return err
	}
	position, err := commitPosition(h)
	if err != nil {
		return err
	}
	if _, err := c.CommitOffsets(position); err != nil {
		return fmt.Errorf("failed to commit %s on %q: %w", h.ID, h.Stream, err)
	}
	return nil
}

// DeadLetter produces the raw fields of a discarded record to the stream's
// dead-letter topic and waits for delivery.
func (b *Bus) DeadLetter(ctx context.Context, rec pipeline.Record) error {
	p, err := b.deadLetterProducer()
	if err != nil {
		return err
	}

	msg, err := deadLetterMessage(rec, b.deadLetterSuffix)
	if err != nil {
		return err
	}
	topic := *msg.TopicPartition.Topic
	delivery := make(chan kafka.Event, 1)
	if err := p.Produce(msg, delivery); err != nil {
		return fmt.Errorf("failed to dead-letter %s to %q: %w", rec.Handle.ID, topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("failed to deliver dead letter %s to %q: %w", rec.Handle.ID, topic, m.TopicPartition.Error)
		}
	}
	return nil
}

// deadLetterMessage keys the copy by its source id. Byte values are written as
// text so the copy stays readable JSON.
func deadLetterMessage(rec pipeline.Record, suffix string) (*kafka.Message, error) {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		fields[k] = v
	}
	value, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	topic := rec.Handle.Stream + suffix
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(rec.Handle.ID),
		Value:          value,
	}, nil
}

func (b *Bus) deadLetterProducer() (*kafka.Producer, error) {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.producer != nil {
		return b.producer, nil
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": b.brokers})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	b.producer = p
	return p, nil
}

// Close leaves the group for every stream. Uncommitted messages are redelivered
// to the next member.
func (b *Bus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	var errs []error
	for stream, c := range b.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer for %q: %w", stream, err))
		}
	}
	if b.producer != nil {
		b.producer.Close()
	}
	return errors.Join(errs...)
}

func formatID(partition int32, offset kafka.Offset) string {
	return fmt.Sprintf("%d-%d", partition, int64(offset))
}

// commitPosition is the offset after the acknowledged message, which is what
// the group resumes from.
func commitPosition(h pipeline.Handle) ([]kafka.TopicPartition, error) {
	partition, offset, err := parseID(h.ID)
	if err != nil {
		return nil, err
	}
	topic := h.Stream
	return []kafka.TopicPartition{{
		Topic:     &topic,
		Partition: partition,
		Offset:    kafka.Offset(offset + 1),
	}}, nil
}

func parseID(id string) (int32, int64, error) {
	p, o, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed kafka record id %q", id)
	}
	partition, err := strconv.ParseInt(p, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed kafka record id %q: %w", id, err)
	}
	offset, err := strconv.ParseInt(o, 10, 64)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("malformed kafka record id %q", id)
	}
	return int32(partition), offset, nil
}

func recordFromMessage(stream string, msg *kafka.Message) pipeline.Record {
	return pipeline.Record{
		Handle: pipeline.Handle{Stream: stream, ID: formatID(msg.TopicPartition.Partition, msg.TopicPartition.Offset)},
		Fields: fieldsFromValue(msg.Value),
	}
}

// fieldsFromValue splits a JSON object value into record fields. A member that
// is a JSON string is unwrapped to its text, matching how Redis delivers
// fields; any other member is passed through as raw JSON.
func fieldsFromValue(value []byte) map[string]any {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(value, &members); err != nil || members == nil {
		return map[string]any{rawValueField: string(value)}
	}

	fields := make(map[string]any, len(members))
	for k, raw := range members {
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				fields[k] = s
				continue
			}
		}
		fields[k] = []byte(raw)
	}
	return fields
}
