package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	ErrPermament = errors.New("permanent messaging error")
	MaxMsgSize   = 64 * 1024 // 64KB
)

type MessageQueue interface {
	Enqueue(topic string, message []byte, options *EnqueueOptions) error
	// handler shouldn't be a blocking call as it would trigger redelivery of the message
	// if certain period of time has passed without ack.
	Dequeue(topic string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	IdempotententKey string
}

type StreamOptions struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	// Consumer is the durable consumer name used by Dequeue.
	Consumer   string
	MaxDeliver int
}

type natsQueue struct {
	opts StreamOptions
	js   jetstream.JetStream

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

// NewNATsMessageQueue creates (or updates) the stream and returns a queue bound to it.
// Events fan out to several readers, so the stream keeps messages until MaxAge.
func NewNATsMessageQueue(nc *nats.Conn, opts StreamOptions) (MessageQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 2 * 24 * time.Hour
	}
	if opts.MaxDeliver == 0 {
		opts.MaxDeliver = 3
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        opts.Name,
		Description: "Stream for " + opts.Name,
		Subjects:    opts.Subjects,
		MaxMsgSize:  int32(MaxMsgSize),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      opts.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", opts.Name, err)
	}
	if info, err := stream.Info(ctx); err == nil {
		logger.Info("Stream ready", "name", info.Config.Name, "subjects", info.Config.Subjects, "msgs", info.State.Msgs)
	}

	return &natsQueue{opts: opts, js: js}, nil
}

func (q *natsQueue) Enqueue(topic string, message []byte, options *EnqueueOptions) error {
	logger.Debug("Enqueueing message", "topic", topic, "size", len(message))
	var pubOpts []jetstream.PublishOpt
	if options != nil && options.IdempotententKey != "" {
		pubOpts = append(pubOpts, jetstream.WithMsgID(options.IdempotententKey))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := q.js.PublishMsg(ctx, &nats.Msg{Subject: topic, Data: message}, pubOpts...); err != nil {
		return fmt.Errorf("error enqueueing message: %w", err)
	}
	return nil
}

func (q *natsQueue) Dequeue(topic string, handler func(message []byte) error) error {
	name := q.opts.Consumer
	if name == "" {
		return errors.New("dequeue requires a consumer name")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.opts.Name, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		MaxDeliver:    q.opts.MaxDeliver,
		MaxAckPending: 16,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", name, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			if errors.Is(err, ErrPermament) {
				logger.Warn("Permanent error on message", "subject", msg.Subject(), "err", err)
				_ = msg.Term()
				return
			}
			logger.Error("Error handling message", "subject", msg.Subject(), "err", err)
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Error("Error acknowledging message", "err", err)
		}
	})
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.consumes = append(q.consumes, cc)
	q.mu.Unlock()
	return nil
}

func (q *natsQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cc := range q.consumes {
		cc.Stop()
	}
	q.consumes = nil
}
