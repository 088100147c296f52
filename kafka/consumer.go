package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errMalformedEvent = errors.New("malformed event")

func InitConsumer(brokers []string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// Notifier delivers a customer-facing message about an order.
type Notifier interface {
	Notify(ctx context.Context, userID int, subject, body string) error
}

// LogNotifier writes notifications to the log instead of a mail gateway.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID int, subject, body string) error {
	n.logger.Info("Notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", userID),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

type NotificationConsumer struct {
	consumer   sarama.Consumer
	topic      string
	notifier   Notifier
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewNotificationConsumer(consumer sarama.Consumer, topic string, notifier Notifier, logger *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		consumer:   consumer,
		topic:      topic,
		notifier:   notifier,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run consumes every partition of the topic until ctx is cancelled.
func (nc *NotificationConsumer) Run(ctx context.Context) error {
	partitions, err := nc.consumer.Partitions(nc.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := nc.consumer.ConsumePartition(nc.topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pc.Close()
			nc.consume(ctx, pc)
		}()
	}

	nc.logger.Info("Kafka consumer started", zap.String("topic", nc.topic), zap.Int("partitions", len(partitions)))
	wg.Wait()
	return nil
}

func (nc *NotificationConsumer) consume(ctx context.Context, pc sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := nc.handleMessageWithRetry(ctx, message); err != nil {
				nc.logger.Error("Failed to handle message after retries",
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			nc.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func (nc *NotificationConsumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= nc.maxRetries; attempt++ {
		err := nc.handleMessage(ctx, message)
		if err == nil || errors.Is(err, errMalformedEvent) {
			return err
		}
		lastErr = err
		if attempt < nc.maxRetries {
			backoff := time.Duration(attempt) * nc.backoff
			nc.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", nc.maxRetries, lastErr)
}

func (nc *NotificationConsumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	// Extract trace context from Kafka message headers
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := otel.Tracer("notification").Start(ctx, "ProcessNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.EventType == "" {
		return fmt.Errorf("%w: missing event_type", errMalformedEvent)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int("order.id", event.OrderID),
		attribute.Int("user.id", event.UserID),
	)

	subject, body, ok := notificationFor(event)
	if !ok {
		nc.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}

	if err := nc.notifier.Notify(ctx, event.UserID, subject, body); err != nil {
		span.RecordError(err)
		return err
	}
	middleware.RecordNotificationSent(event.EventType)
	return nil
}

func notificationFor(event models.OrderEvent) (subject, body string, ok bool) {
	switch event.EventType {
	case models.EventOrderCreated:
		return "Order received",
			fmt.Sprintf("Your order #%d for S/ %s has been placed with %s. Current status: %s.",
				event.OrderID, event.Total.StringFixed(2), event.PaymentMethod, event.Status), true
	case models.EventOrderStatusChanged:
		return "Order update",
			fmt.Sprintf("Your order #%d is now %s.", event.OrderID, event.Status), true
	case models.EventPaymentUpdated:
		return "Payment update",
			fmt.Sprintf("Payment %s for order #%d was processed. Order status: %s.", event.PaymentID, event.OrderID, event.Status), true
	}
	return "", "", false
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
