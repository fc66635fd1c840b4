package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Типы событий в топике событий движка
const (
	EventImportCompleted  = "import.completed"
	EventImportFailed     = "import.failed"
	EventPurchaseRecorded = "purchase.recorded"
)

// Event конверт события
type Event struct {
	ID         string      `json:"event_id"`
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// PurchaseRecordedPayload данные события purchase.recorded
type PurchaseRecordedPayload struct {
	Material models.Material    `json:"material"`
	Lot      models.PurchaseLot `json:"lot"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher публикует итоги импорта и поступления в Kafka.
// Подписан на ImportPipeline и PurchaseService как наблюдатель
type KafkaEventPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaEventPublisher создает асинхронный producer
func NewKafkaEventPublisher(brokers []string, topic string, auth KafkaAuth) *KafkaEventPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // События тенанта в одной партиции
		Transport:              CreateKafkaTransport(auth),
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.GetLogger().Warn("⚠️ Kafka: события не доставлены",
					zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	logger.GetLogger().Info("✅ Kafka producer событий подключен",
		zap.Strings("brokers", brokers), zap.String("topic", topic))
	return newKafkaEventPublisher(writer)
}

func newKafkaEventPublisher(writer messageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer, timeout: 5 * time.Second}
}

// Publish отправляет событие с ключом тенанта
func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType, tenantID string, payload interface{}) error {
	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(tenantID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

// ImportStateChanged публикует только конечные состояния импорта
func (p *KafkaEventPublisher) ImportStateChanged(ctx context.Context, result models.ImportResult) {
	var eventType string
	switch result.State {
	case models.ImportDone:
		eventType = EventImportCompleted
	case models.ImportFailed:
		eventType = EventImportFailed
	default:
		return
	}
	if err := p.Publish(ctx, eventType, result.TenantID, result); err != nil {
		logger.FromContext(ctx).Warn("⚠️ Kafka: не удалось опубликовать событие импорта",
			zap.String("job_id", result.JobID), zap.Error(err))
	}
}

// PurchaseRecorded публикует записанное поступление
func (p *KafkaEventPublisher) PurchaseRecorded(ctx context.Context, material models.Material, lot models.PurchaseLot) {
	if err := p.Publish(ctx, EventPurchaseRecorded, lot.TenantID, PurchaseRecordedPayload{Material: material, Lot: lot}); err != nil {
		logger.FromContext(ctx).Warn("⚠️ Kafka: не удалось опубликовать поступление",
			zap.String("lot_id", lot.ID), zap.Error(err))
	}
}

// Close сбрасывает буфер и закрывает writer
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
