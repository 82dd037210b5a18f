package kafkabus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

func TestFieldsFromValue(t *testing.T) {
	fields := fieldsFromValue([]byte(`{"context":"{\"receipt_id\":\"r1\"}","mint":{"owner_id":"alice"}}`))
	assert.Equal(t, `{"receipt_id":"r1"}`, fields["context"])
	assert.JSONEq(t, `{"owner_id":"alice"}`, string(fields["mint"].([]byte)))

	assert.Equal(t, map[string]any{rawValueField: "not json"}, fieldsFromValue([]byte("not json")))
	assert.Equal(t, map[string]any{rawValueField: "[1,2]"}, fieldsFromValue([]byte("[1,2]")))
	assert.Equal(t, map[string]any{rawValueField: "null"}, fieldsFromValue([]byte("null")))
}

func TestRecordIDRoundTrip(t *testing.T) {
	id := formatID(3, kafka.Offset(1234))
	assert.Equal(t, "3-1234", id)

	p, o, err := parseID(id)
	require.NoError(t, err)
	assert.Equal(t, int32(3), p)
	assert.Equal(t, int64(1234), o)

	for _, bad := range []string{"", "3", "x-1", "3-x", "3--1"} {
		_, _, err := parseID(bad)
		assert.Error(t, err, "parseID(%q)", bad)
	}
}

func TestRecordFromMessage(t *testing.T) {
	topic := "nft_mint"
	rec := recordFromMessage(topic, &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 1, Offset: 7},
		Value:          []byte(`{"context":"{}"}`),
	})
	assert.Equal(t, "nft_mint", rec.Handle.Stream)
	assert.Equal(t, "1-7", rec.Handle.ID)
	assert.Equal(t, "{}", rec.Fields["context"])
}

type fakeReader struct {
	msgs  []*kafka.Message
	errs  []error
	waits []time.Duration
}

func (r *fakeReader) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	r.waits = append(r.waits, timeout)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(r.msgs) == 0 {
		return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func message(topic string, offset int64) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: kafka.Offset(offset)},
		Value:          []byte(`{"context":"{}"}`),
	}
}

func TestDrainWaitsOnlyForTheFirstMessage(t *testing.T) {
	r := &fakeReader{msgs: []*kafka.Message{message("nft_mint", 4), message("nft_mint", 5), message("nft_mint", 6)}}

	recs, err := drain(context.Background(), r, "nft_mint", 2, time.Second)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "0-4", recs[0].Handle.ID)
	assert.Equal(t, "0-5", recs[1].Handle.ID)
	assert.Equal(t, []time.Duration{time.Second, 0}, r.waits)

	recs, err = drain(context.Background(), r, "nft_mint", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0-6", recs[0].Handle.ID)
}

func TestDrainTimeoutIsAnEmptyBatch(t *testing.T) {
	recs, err := drain(context.Background(), &fakeReader{}, "nft_mint", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDrainErrors(t *testing.T) {
	broken := errors.New("broker down")

	_, err := drain(context.Background(), &fakeReader{errs: []error{broken}}, "nft_mint", 10, time.Millisecond)
	assert.ErrorIs(t, err, broken)

	// A failure after the first message keeps what was already read.
	r := &fakeReader{msgs: []*kafka.Message{message("nft_mint", 1)}, errs: []error{nil, broken}}
	recs, err := drain(context.Background(), r, "nft_mint", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = drain(ctx, &fakeReader{}, "nft_mint", 10, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommitPositionIsNextOffset(t *testing.T) {
	position, err := commitPosition(pipeline.Handle{Stream: "nft_mint", ID: "2-41"})
	require.NoError(t, err)
	require.Len(t, position, 1)
	assert.Equal(t, "nft_mint", *position[0].Topic)
	assert.Equal(t, int32(2), position[0].Partition)
	assert.Equal(t, kafka.Offset(42), position[0].Offset)

	_, err = commitPosition(pipeline.Handle{Stream: "nft_mint", ID: "1700000000000"})
	assert.Error(t, err)
}

func TestDeadLetterMessage(t *testing.T) {
	msg, err := deadLetterMessage(pipeline.Record{
		Handle: pipeline.Handle{Stream: "nft_mint", ID: "0-9"},
		Fields: map[string]any{"context": "{", "mint": []byte(`{"owner_id":1}`)},
	}, "_dead")
	require.NoError(t, err)

	assert.Equal(t, "nft_mint_dead", *msg.TopicPartition.Topic)
	assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
	assert.Equal(t, []byte("0-9"), msg.Key)
	assert.JSONEq(t, `{"context":"{","mint":"{\"owner_id\":1}"}`, string(msg.Value))
}
