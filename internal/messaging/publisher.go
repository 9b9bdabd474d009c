package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/models"
)

// NotificationEvent - сообщение, уходящее в брокер при создании уведомления.
type NotificationEvent struct {
	ID          string                  `json:"id"`
	RecipientID string                  `json:"recipientId"`
	ActorID     *string                 `json:"actorId,omitempty"`
	Type        models.NotificationType `json:"type"`
	Message     string                  `json:"message"`
	PostType    *models.PostType        `json:"postType,omitempty"`
	PostID      *string                 `json:"postId,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
}

func EventFromNotification(n *models.Notification) NotificationEvent {
	return NotificationEvent{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		ActorID:     n.ActorID,
		Type:        n.Type,
		Message:     n.Message,
		PostType:    n.PostType,
		PostID:      n.PostID,
		CreatedAt:   n.CreatedAt,
	}
}

type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n *models.Notification) error
	Close() error
}

// NopPublisher используется, когда RabbitMQ не настроен.
type NopPublisher struct{}

func (NopPublisher) PublishNotification(ctx context.Context, n *models.Notification) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

var _ NotificationPublisher = (*RabbitPublisher)(nil)

type RabbitPublisher struct {
	conn      *amqp091.Connection
	queueName string
	logger    *zap.Logger
}

// Dial подключается к RabbitMQ с повторами и объявляет durable-очередь.
func Dial(ctx context.Context, url, queueName string, attempts int, logger *zap.Logger) (*RabbitPublisher, error) {
	log := logger.Named("RabbitPublisher").With(zap.String("queue", queueName))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	if attempts < 1 {
		attempts = 1
	}

	var conn *amqp091.Connection
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = amqp091.Dial(url)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx), func(err error, wait time.Duration) {
		log.Warn("Failed to connect to RabbitMQ, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	p := &RabbitPublisher{conn: conn, queueName: queueName, logger: log}
	if err := p.declareQueue(); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("RabbitMQ publisher ready")
	return p, nil
}

func (p *RabbitPublisher) declareQueue() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", p.queueName, err)
	}
	return nil
}

func (p *RabbitPublisher) PublishNotification(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(EventFromNotification(n))
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		"",          // default exchange
		p.queueName, // routing key
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    n.ID,
			Body:         body,
		},
	)
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		p.logger.Error("Failed to publish notification", zap.String("notificationID", n.ID), zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	p.logger.Debug("Notification published", zap.String("notificationID", n.ID), zap.String("type", string(n.Type)))
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}
