package main

import (
	"context"
	"fmt"

	"github.com/ericvolp12/eventsink/pkg/bus/kafkabus"
	"github.com/ericvolp12/eventsink/pkg/bus/redisbus"
	"github.com/ericvolp12/eventsink/pkg/consumer"
)

const (
	busRedis = "redis"
	busKafka = "kafka"
)

type eventBus interface {
	consumer.Bus
	consumer.DeadLetterer
	Close() error
}

type busConfig struct {
	Kind             string
	RedisURL         string
	KafkaBrokers     string
	Group            string
	Consumer         string
	DeadLetterSuffix string
	// Streams is the number of consumers sharing the bus.
	Streams int
}

func openBus(ctx context.Context, cfg busConfig) (eventBus, error) {
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer-group must not be empty")
	}

	switch cfg.Kind {
	case busRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis-url (REDIS_URL) is required with --bus=%s", busRedis)
		}
		// One blocking read per stream plus headroom for acks and dead letters.
		client, err := redisbus.Dial(ctx, cfg.RedisURL, cfg.Streams*2+4)
		if err != nil {
			return nil, err
		}
		return redisbus.New(client, cfg.Group, cfg.Consumer, cfg.DeadLetterSuffix), nil
	case busKafka:
		if cfg.KafkaBrokers == "" {
			return nil, fmt.Errorf("kafka-brokers (KAFKA_BROKERS) is required with --bus=%s", busKafka)
		}
		return kafkabus.New(cfg.KafkaBrokers, cfg.Group, cfg.DeadLetterSuffix), nil
	}
	return nil, fmt.Errorf("unknown bus %q (want %q or %q)", cfg.Kind, busRedis, busKafka)
}
