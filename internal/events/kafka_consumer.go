package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/application"
	"github.com/servemate/service-booking/internal/domain"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const handleAttempts = 3

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PaymentHandler is the part of the booking service payment events drive.
type PaymentHandler interface {
	PayBooking(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID, paymentRef string) (*application.BookingDTO, error)
}

// PaymentEventConsumer listens to payment events and records confirmed
// payments on their bookings.
type PaymentEventConsumer struct {
	reader  messageReader
	service PaymentHandler
	logger  *zap.Logger
}

// NewPaymentEventConsumer creates a new PaymentEventConsumer.
func NewPaymentEventConsumer(
	brokers []string,
	groupID string,
	service PaymentHandler,
	logger *zap.Logger,
) *PaymentEventConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       TopicPaymentEvents,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return newPaymentEventConsumer(reader, service, logger)
}

func newPaymentEventConsumer(reader messageReader, service PaymentHandler, logger *zap.Logger) *PaymentEventConsumer {
	return &PaymentEventConsumer{
		reader:  reader,
		service: service,
		logger:  logger,
	}
}

// Start begins consuming payment events. This blocks until the context is cancelled.
func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to fetch payment event", zap.Error(err))
			continue
		}

		var handleErr error
		for attempt := 1; attempt <= handleAttempts; attempt++ {
			if handleErr = c.handleMessage(ctx, msg); handleErr == nil {
				break
			}
		}
		if handleErr != nil {
			c.logger.Error("dropping payment event after retries",
				zap.Int64("offset", msg.Offset),
				zap.Error(handleErr),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to commit payment event", zap.Error(err))
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *PaymentEventConsumer) Close() error {
	return c.reader.Close()
}

func (c *PaymentEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from payment topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case PaymentConfirmed:
		return c.handlePaymentConfirmed(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled payment event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *PaymentEventConsumer) handlePaymentConfirmed(ctx context.Context, cloudEvent CloudEvent) error {
	var evt PaymentConfirmedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse PaymentConfirmedEvent data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	c.logger.Info("processing payment confirmed event",
		zap.String("booking_id", evt.BookingID.String()),
		zap.String("payment_id", evt.PaymentID.String()),
	)

	_, err := c.service.PayBooking(ctx, bookingDomain.SystemActor("payment-events"), evt.BookingID, evt.PaymentRef)
	switch {
	case err == nil:
	case domain.IsInvalidTransition(err), domain.IsNotFound(err):
		// Redelivered or stale payment: the booking has already moved on.
		c.logger.Info("payment event does not apply to booking",
			zap.String("booking_id", evt.BookingID.String()),
			zap.Error(err),
		)
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		c.logger.Error("failed to record payment on booking",
			zap.String("booking_id", evt.BookingID.String()),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("booking paid",
		zap.String("booking_id", evt.BookingID.String()),
	)
	return nil
}
