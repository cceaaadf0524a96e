package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/quadra-map/internal/core/observability"
)

// areaUpdates applies area-update messages one partition at a time. An offset
// is marked only after its message applied, so an invalidation that keeps
// failing is redelivered once the group session restarts.
type areaUpdates struct {
	apply   func(context.Context, *sarama.ConsumerMessage) error
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

func (h *areaUpdates) Setup(s sarama.ConsumerGroupSession) error {
	h.logger.Info("area update partitions assigned",
		"member", s.MemberID(), "generation", s.GenerationID(), "claims", s.Claims())
	return nil
}

func (h *areaUpdates) Cleanup(s sarama.ConsumerGroupSession) error {
	h.logger.Info("area update partitions released", "generation", s.GenerationID())
	return nil
}

func (h *areaUpdates) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim %s/%d: %w", claim.Topic(), claim.Partition(), ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.applyWithRetry(ctx, msg); err != nil {
				return fmt.Errorf("area update %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
			obs.SetKafkaLag(msg.Topic, msg.Partition, claim.HighWaterMarkOffset()-msg.Offset-1)
		}
	}
}

func (h *areaUpdates) applyWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) error {
	wait := h.backoff
	for attempt := 0; ; attempt++ {
		err := h.apply(ctx, msg)
		if err == nil || attempt >= h.retries {
			return err
		}
		h.logger.Warn("area update failed; retrying",
			"offset", msg.Offset, "partition", msg.Partition, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}
