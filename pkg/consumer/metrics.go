package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsReadCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventsink_records_read_total",
	Help: "The total number of stream records read by the consumer",
}, []string{"stream"})

var recordsAckedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventsink_records_acked_total",
	Help: "The total number of stream records acknowledged",
}, []string{"stream"})

var decodeFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventsink_decode_failures_total",
	Help: "The total number of records discarded because they could not be decoded",
}, []string{"stream"})

var handlerFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventsink_handler_failures_total",
	Help: "The total number of failed handler invocations",
}, []string{"stream"})

var transportRetriesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventsink_transport_retries_total",
	Help: "The total number of retried bus operations",
}, []string{"stream", "op"})

var handleDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "eventsink_handle_duration_seconds",
	Help:    "The amount of time it takes to persist one decoded event",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"stream"})

var lastProcessedAtGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "eventsink_last_record_processed_at",
	Help: "The unix timestamp of the last record acknowledged",
}, []string{"stream"})

var lastBlockHeightGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "eventsink_last_block_height",
	Help: "The block height of the last event persisted",
}, []string{"stream"})
