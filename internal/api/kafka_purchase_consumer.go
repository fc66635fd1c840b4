package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/services"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const purchaseConsumerGroup = "fabrica-costing-purchases"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPurchaseConsumer читает поступления сырья из Kafka и записывает их как партии
type KafkaPurchaseConsumer struct {
	reader     messageReader
	topic      string
	purchases  *services.PurchaseService
	maxRetries int
	backoff    time.Duration
	processed  int64
	skipped    int64
}

// NewKafkaPurchaseConsumer создает consumer с группой fabrica-costing-purchases
func NewKafkaPurchaseConsumer(brokers []string, topic string, auth KafkaAuth, purchases *services.PurchaseService) *KafkaPurchaseConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     purchaseConsumerGroup,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      CreateKafkaDialer(auth),
	})
	return newKafkaPurchaseConsumer(reader, topic, purchases)
}

func newKafkaPurchaseConsumer(reader messageReader, topic string, purchases *services.PurchaseService) *KafkaPurchaseConsumer {
	return &KafkaPurchaseConsumer{
		reader:     reader,
		topic:      topic,
		purchases:  purchases,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run читает сообщения до отмены контекста. Сообщение подтверждается после обработки;
// некорректные сообщения пропускаются с подтверждением
func (kc *KafkaPurchaseConsumer) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With(zap.String("topic", kc.topic), zap.String("group_id", purchaseConsumerGroup))
	log.Info("📡 Kafka consumer поступлений запущен")

	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("🛑 Kafka consumer поступлений остановлен",
					zap.Int64("processed", atomic.LoadInt64(&kc.processed)),
					zap.Int64("skipped", atomic.LoadInt64(&kc.skipped)))
				return
			}
			log.Warn("⚠️ Kafka consumer ошибка чтения", zap.Error(err))
			if !sleepCtx(ctx, kc.backoff) {
				return
			}
			continue
		}

		if err := kc.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("❌ Поступление не записано, сообщение пропущено",
				zap.Int64("offset", msg.Offset), zap.Int("partition", msg.Partition), zap.Error(err))
			atomic.AddInt64(&kc.skipped, 1)
		}

		if err := kc.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("⚠️ Kafka: ошибка подтверждения сообщения", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (kc *KafkaPurchaseConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= kc.maxRetries; attempt++ {
		err = kc.HandleMessage(ctx, msg)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt < kc.maxRetries && !sleepCtx(ctx, kc.backoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	return err
}

// errMalformedMessage сообщение не является поступлением
var errMalformedMessage = errors.New("некорректное сообщение поступления")

func retryable(err error) bool {
	return !errors.Is(err, errMalformedMessage) && !errors.Is(err, services.ErrInvalidPurchase)
}

// HandleMessage разбирает JSON поступления и записывает его. Тенант может прийти в заголовке tenant_id
func (kc *KafkaPurchaseConsumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var receipt services.PurchaseReceipt
	if err := json.Unmarshal(msg.Value, &receipt); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if receipt.TenantID == "" {
		for _, h := range msg.Headers {
			if h.Key == "tenant_id" {
				receipt.TenantID = string(h.Value)
			}
		}
	}
	if receipt.Source == "" {
		receipt.Source = "kafka"
	}

	if _, err := kc.purchases.RecordPurchase(ctx, receipt); err != nil {
		return err
	}
	atomic.AddInt64(&kc.processed, 1)
	return nil
}

// Close закрывает reader
func (kc *KafkaPurchaseConsumer) Close() error {
	return kc.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
