package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/config"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/parser"
	"github.com/video-relay/youtube-reddit-relay/pkg/logger"
)

const defaultConfirmTimeout = 5 * time.Second

// SubmissionEvent is the broker payload emitted for every created submission.
type SubmissionEvent struct {
	SubmissionID    string    `json:"submission_id"`
	VideoID         string    `json:"video_id"`
	VideoTitle      string    `json:"video_title"`
	VideoURL        string    `json:"video_url"`
	RedditAccountID int64     `json:"reddit_account_id"`
	SubredditID     int64     `json:"subreddit_id"`
	Stickied        bool      `json:"stickied"`
	CreatedAt       time.Time `json:"created_at"`
}

// brokerChannel is the slice of amqp.Channel the publisher uses.
type brokerChannel interface {
	Confirm(noWait bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// SubmissionPublisher broadcasts created submissions to a RabbitMQ topic
// exchange with publisher confirms. Consumers bind their own queues.
//
// One confirm listener is registered for the lifetime of the channel and
// publishes are serialized, so each broker ack is read by the publish that
// produced it. Acks are matched by delivery tag; a late ack from a publish
// that already timed out is discarded.
type SubmissionPublisher struct {
	conn           *amqp.Connection
	channel        brokerChannel
	confirms       chan amqp.Confirmation
	config         *config.RabbitMQConfig
	confirmTimeout time.Duration
	mu             sync.Mutex
}

// NewSubmissionPublisher connects to the broker and declares the exchange.
func NewSubmissionPublisher(cfg *config.RabbitMQConfig) (*SubmissionPublisher, error) {
	p := &SubmissionPublisher{config: cfg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SubmissionPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := p.initChannel(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn = conn

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// initChannel puts the channel into confirm mode, declares the exchange and
// registers the publisher's single confirm listener.
func (p *SubmissionPublisher) initChannel(ch brokerChannel) error {
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.channel = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	if p.confirmTimeout == 0 {
		p.confirmTimeout = defaultConfirmTimeout
	}
	return nil
}

// PublishSubmissionCreated emits one event and waits for the broker ack.
func (p *SubmissionPublisher) PublishSubmissionCreated(ctx context.Context, submission *models.Submission, video parser.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	event := SubmissionEvent{
		SubmissionID:    submission.ID,
		VideoID:         submission.VideoID,
		VideoTitle:      video.Title,
		VideoURL:        video.VideoURL,
		RedditAccountID: submission.RedditAccountID,
		SubredditID:     submission.SubredditID,
		Stickied:        submission.Stickied,
		CreatedAt:       submission.CreatedAt,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	seq := p.channel.GetNextPublishSeqNo()

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,   // exchange
		p.config.RoutingKey, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    submission.ID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if err := p.awaitConfirm(ctx, seq); err != nil {
		return err
	}

	logger.Log.Debug("Published submission event",
		zap.String("submission_id", submission.ID),
		zap.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// awaitConfirm blocks until the broker acks the publish with the given
// delivery tag. Confirms for earlier tags belong to publishes that already
// gave up waiting and are dropped.
func (p *SubmissionPublisher) awaitConfirm(ctx context.Context, seq uint64) error {
	timeout := time.NewTimer(p.confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("confirm channel closed")
			}
			if confirm.DeliveryTag < seq {
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("message was not acknowledged by broker")
			}
			return nil
		case <-timeout.C:
			return fmt.Errorf("timeout waiting for publish confirmation")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close shuts down the channel and connection.
func (p *SubmissionPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	logger.Log.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the broker connection is usable.
func (p *SubmissionPublisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
