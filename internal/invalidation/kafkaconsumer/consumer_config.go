package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/quadra-map/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
	// in-claim attempts after a failed invalidation before the claim gives up
	Retries int
	Backoff time.Duration
}

func ConfigFrom(k config.KafkaCfg) Config {
	return Config{
		Brokers:          config.SplitCSV(k.Brokers),
		Topic:            k.UpdateTopic,
		GroupID:          k.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// cache entries are short-lived, old updates are irrelevant
		InitialOffsetOldest: false,
		DedupeSize:          4096,
		Retries:             3,
		Backoff:             200 * time.Millisecond,
	}
}
