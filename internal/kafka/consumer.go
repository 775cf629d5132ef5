package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler must return nil only when processing succeeded and the offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and shards messages to a
// worker pool by partition, so each partition is handled and committed in
// order: a commit can never advance the group past an unprocessed message.
// A message that keeps failing stops the consumer instead of being skipped;
// the restart resumes from the last committed offset.
type Consumer struct {
	reader       messageSource
	workers      int
	retryBackoff time.Duration
	log          *zap.Logger
}

const handleAttempts = 5

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		workers: workers,
		log:     log,
	}
}

// Start blocks until ctx is cancelled, the reader fails, or a message
// exhausts its retries.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.reader.Close()

	shards := make([]chan kafka.Message, c.workers)
	for i := range shards {
		shards[i] = make(chan kafka.Message)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range shards {
		ch := shards[i]
		g.Go(func() error {
			for m := range ch {
				if err := c.process(ctx, h, m); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			select {
			case shards[m.Partition%len(shards)] <- m:
			case <-ctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

// process retries transient handler failures in place, commits on success,
// and hands a persistent failure back to Start.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	backoff := c.retryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < handleAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if err = h(ctx, m); err == nil {
			if cerr := c.reader.CommitMessages(ctx, m); cerr != nil && ctx.Err() == nil {
				c.log.Warn("commit offset", zap.Error(cerr))
			}
			return nil
		}
		c.log.Warn("handle message",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
	return err
}
