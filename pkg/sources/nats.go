package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ydagan/synaptic/pkg/config"
	"github.com/ydagan/synaptic/pkg/domain"
)

const (
	fetchBatchSize = 64
	fetchMaxWait   = 5 * time.Second
)

// Subscriber consumes state-change events from a JetStream stream and
// feeds them into the sink.
type Subscriber struct {
	logger *zap.Logger
	config *config.NATSConfig
	sink   EventSink

	nc           *nats.Conn
	js           nats.JetStreamContext
	subscription *nats.Subscription
	limiter      *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.RWMutex
	messagesReceived int64
	messagesAcked    int64
	messagesNacked   int64
}

// NewSubscriber connects to NATS and ensures the stream and durable
// consumer exist.
func NewSubscriber(logger *zap.Logger, cfg *config.NATSConfig, sink EventSink) (*Subscriber, error) {
	s := &Subscriber{
		logger: logger,
		config: cfg,
		sink:   sink,
	}

	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	if err := s.connect(); err != nil {
		return nil, err
	}
	if err := s.setupJetStream(); err != nil {
		s.nc.Close()
		return nil, err
	}
	return s, nil
}

// Start subscribes and processes messages until the context is
// canceled, then shuts down.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("starting NATS subscriber",
		zap.String("stream", s.config.StreamName),
		zap.String("subject", s.config.Subject),
		zap.String("consumer", s.config.ConsumerName),
	)

	sub, err := s.js.PullSubscribe(s.config.Subject, s.config.ConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.subscription = sub

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.fetchMessages(ctx)

	<-ctx.Done()
	return s.Stop()
}

// Stop gracefully shuts down the subscriber.
func (s *Subscriber) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("failed to unsubscribe", zap.Error(err))
		}
	}
	s.wg.Wait()
	if s.nc != nil {
		s.nc.Close()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Info("NATS subscriber stopped",
		zap.Int64("messages_received", s.messagesReceived),
		zap.Int64("messages_acked", s.messagesAcked),
		zap.Int64("messages_nacked", s.messagesNacked),
	)
	return nil
}

func (s *Subscriber) connect() error {
	opts := []nats.Option{
		nats.Name(s.config.ConsumerName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			s.logger.Error("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(s.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.nc = nc
	return nil
}

func (s *Subscriber) setupJetStream() error {
	js, err := s.nc.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	s.js = js

	streamConfig := &nats.StreamConfig{
		Name:      s.config.StreamName,
		Subjects:  []string{s.config.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	_, err = js.StreamInfo(s.config.StreamName)
	if err == nats.ErrStreamNotFound {
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("created JetStream stream", zap.String("name", s.config.StreamName))
	} else if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	consumerConfig := &nats.ConsumerConfig{
		Durable:       s.config.ConsumerName,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: s.config.Subject,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}

	_, err = js.ConsumerInfo(s.config.StreamName, s.config.ConsumerName)
	if err == nats.ErrConsumerNotFound {
		if _, err := js.AddConsumer(s.config.StreamName, consumerConfig); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		s.logger.Info("created JetStream consumer", zap.String("name", s.config.ConsumerName))
	} else if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}

	return nil
}

func (s *Subscriber) fetchMessages(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := s.subscription.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			s.logger.Error("failed to fetch messages", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		s.handleBatch(ctx, msgs)
	}
}

// handleBatch decodes a fetched batch, ingests the valid events and
// acks per message. Undecodable messages are acked too: redelivery
// cannot fix a malformed payload.
func (s *Subscriber) handleBatch(ctx context.Context, msgs []*nats.Msg) {
	events := make([]domain.Event, 0, len(msgs))
	decoded := make([]*nats.Msg, 0, len(msgs))

	for _, msg := range msgs {
		s.mu.Lock()
		s.messagesReceived++
		s.mu.Unlock()

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable message",
				zap.Error(err),
				zap.String("subject", msg.Subject),
			)
			s.ack(msg)
			continue
		}
		events = append(events, event)
		decoded = append(decoded, msg)
	}

	if len(events) == 0 {
		return
	}

	if err := s.sink.Ingest(ctx, events); err != nil {
		s.logger.Error("failed to ingest event batch", zap.Error(err))
		for _, msg := range decoded {
			s.nack(msg)
		}
		return
	}
	for _, msg := range decoded {
		s.ack(msg)
	}
}

// decodeEvent parses a state-change event payload.
func decodeEvent(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if !event.Valid() {
		return domain.Event{}, fmt.Errorf("event missing entity id or timestamp")
	}
	return event, nil
}

func (s *Subscriber) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		s.logger.Error("failed to ack message", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.messagesAcked++
	s.mu.Unlock()
}

func (s *Subscriber) nack(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		s.logger.Error("failed to nack message", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.messagesNacked++
	s.mu.Unlock()
}

// Stats returns current subscriber counters.
func (s *Subscriber) Stats() (received, acked, nacked int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesReceived, s.messagesAcked, s.messagesNacked
}
