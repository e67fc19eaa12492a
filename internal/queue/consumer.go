package queue

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// Consumer reads jobs off the dispatch queue and hands live ones to a Handler.
type Consumer struct {
	ch         Channel
	queue      string
	registry   Registry
	handler    Handler
	MaxRetries int
	log        *zap.Logger
}

func NewConsumer(ch Channel, queue string, registry Registry, handler Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		ch:         ch,
		queue:      queue,
		registry:   registry,
		handler:    handler,
		MaxRetries: 3,
		log:        log,
	}
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if err := DeclareQueues(c.ch, c.queue); err != nil {
		return err
	}
	if err := c.ch.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "set qos")
	}
	deliveries, err := c.ch.Consume(
		c.queue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "register consumer")
	}

	c.log.Info("worker running, waiting for jobs", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil || job.ID == "" {
		c.log.Warn("invalid job, dropping", zap.ByteString("body", d.Body), zap.Error(err))
		c.ack(d)
		return
	}
	log := c.log.With(zap.String("job_id", job.ID), zap.Int64("mailing_id", job.MailingID))

	discarded, err := c.registry.Discard(ctx, job.ID)
	if err != nil {
		log.Warn("registry lookup failed, requeueing", zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
		return
	}
	if discarded {
		log.Info("job was revoked, skipping")
		c.ack(d)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		c.retry(ctx, d, job, err, log)
		return
	}
	if err := c.registry.Forget(ctx, job.ID); err != nil {
		log.Warn("failed to forget finished job", zap.Error(err))
	}
	c.ack(d)
}

// retry republishes the job with an incremented retry header, or drops it
// once MaxRetries is reached.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, job Job, cause error, log *zap.Logger) {
	attempts := retryCount(d.Headers) + 1
	if attempts > c.MaxRetries {
		log.Error("job permanently failed", zap.Int("attempts", attempts), zap.Error(cause))
		_ = c.registry.Forget(ctx, job.ID)
		c.ack(d)
		return
	}

	log.Warn("job failed, retrying", zap.Int("attempt", attempts), zap.Error(cause))
	err := c.ch.Publish("", c.queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      amqp.Table{retryHeader: int32(attempts)},
		Body:         d.Body,
	})
	if err != nil {
		log.Error("republish failed, requeueing original", zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
		return
	}
	c.ack(d)
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.log.Error("ack failed", zap.Error(err))
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
