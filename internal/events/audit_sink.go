package events

import (
	"context"

	"github.com/servemate/service-booking/internal/application"
	"go.uber.org/zap"
)

const auditSource = "service-booking"

type publisher interface {
	PublishEvent(ctx context.Context, topic, key string, ce CloudEvent) error
}

// KafkaAuditSink appends audit records to the booking.audit topic.
type KafkaAuditSink struct {
	producer publisher
}

// NewKafkaAuditSink creates a KafkaAuditSink.
func NewKafkaAuditSink(producer *Producer) *KafkaAuditSink {
	return &KafkaAuditSink{producer: producer}
}

// Record implements application.AuditSink.
func (s *KafkaAuditSink) Record(ctx context.Context, rec application.AuditRecord) error {
	ce, err := NewCloudEvent(auditSource, BookingAuditRecorded, rec)
	if err != nil {
		return err
	}
	return s.producer.PublishEvent(ctx, TopicBookingAudit, rec.EntityID, ce)
}

// LogAuditSink writes audit records to the log. It is used when no broker
// is configured.
type LogAuditSink struct {
	logger *zap.Logger
}

// NewLogAuditSink creates a LogAuditSink.
func NewLogAuditSink(logger *zap.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger}
}

// Record implements application.AuditSink.
func (s *LogAuditSink) Record(_ context.Context, rec application.AuditRecord) error {
	s.logger.Info("audit",
		zap.String("actor_id", rec.ActorID),
		zap.String("actor_role", rec.ActorRole),
		zap.String("action", rec.Action),
		zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID),
		zap.String("from", rec.PreviousStatus),
		zap.String("to", rec.NewStatus),
		zap.String("detail", rec.Detail),
	)
	return nil
}
