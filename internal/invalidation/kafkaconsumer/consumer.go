// Package kafkaconsumer drops cached area documents when the area API
// announces a new revision.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/invalidation"
	mylog "github.com/mohammed-shakir/quadra-map/internal/logger"
)

type AreaStore interface {
	Invalidate(ctx context.Context, areaIDs ...string) error
}

// AreaForgetter is an in-process cache of parsed areas.
type AreaForgetter interface {
	Invalidate(areaIDs ...string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	store  AreaStore
	forget []AreaForgetter
	dedupe *invalidation.RevisionDedupe
}

func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, store AreaStore, forget ...AreaForgetter) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	var fs []AreaForgetter
	for _, f := range forget {
		if f != nil {
			fs = append(fs, f)
		}
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		zlog:   zl,
		store:  store,
		forget: fs,
		dedupe: invalidation.NewRevisionDedupe(cfg.DedupeSize),
	}
}

// Start consumes area updates until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: missing area store")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := c.handler()
	c.logger.Info("area update consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("area update consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.logger.Error("consumer error", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

func (c *Consumer) handler() *areaUpdates {
	return &areaUpdates{
		apply:   c.ProcessOne,
		logger:  c.logger,
		retries: c.cfg.Retries,
		backoff: c.cfg.Backoff,
	}
}

// ProcessOne applies one area-update message. Undecodable or invalid
// messages are logged and skipped; a failing cache delete is returned so the
// message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.AreaUpdate
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		obs.ObserveInvalidation("skipped")
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("validate")
		obs.ObserveInvalidation("skipped")
		c.logger.Warn("invalid area update", "err", err, "offset", msg.Offset)
		return nil
	}
	if !c.dedupe.ShouldApply(ev.AreaID, ev.Revision) {
		obs.ObserveInvalidation("duplicate")
		return nil
	}

	ctx = mylog.WithArea(ctx, ev.AreaID)
	if err := c.store.Invalidate(ctx, ev.AreaID); err != nil {
		c.dedupe.Forget(ev.AreaID)
		obs.IncKafkaConsumerError("redis_del")
		obs.ObserveInvalidation("failed")
		mylog.FromContext(ctx, c.zlog).Error().
			Err(err).
			Str("kind", "redis_del").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Msg("kafka error")
		return fmt.Errorf("invalidate area %s: %w", ev.AreaID, err)
	}
	for _, f := range c.forget {
		f.Invalidate(ev.AreaID)
	}

	obs.ObserveInvalidation("applied")
	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Uint64("revision", ev.Revision).
		Msg("invalidated area")
	return nil
}
