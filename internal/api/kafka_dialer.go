package api

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"fabrica/server/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// KafkaAuth параметры подключения к управляемому Kafka (SASL/PLAIN + TLS)
type KafkaAuth struct {
	Username string
	Password string
	CACert   string
}

func (a KafkaAuth) mechanism() sasl.Mechanism {
	if a.Username == "" || a.Password == "" {
		return nil
	}
	return plain.Mechanism{Username: a.Username, Password: a.Password}
}

// tlsConfig TLS включается при SASL или явном CA сертификате.
// Без CA используются системные сертификаты
func (a KafkaAuth) tlsConfig() *tls.Config {
	if a.mechanism() == nil && a.CACert == "" {
		return nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if a.CACert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(a.CACert)) {
			cfg.RootCAs = pool
		} else {
			logger.GetLogger().Warn("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}
	return cfg
}

// CreateKafkaDialer создает dialer для чтения (kafka.Reader)
func CreateKafkaDialer(auth KafkaAuth) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		SASLMechanism: auth.mechanism(),
		TLS:           auth.tlsConfig(),
	}
	if dialer.SASLMechanism != nil {
		logger.GetLogger().Info("🔐 Kafka: SASL/PLAIN аутентификация включена", zap.String("username", auth.Username))
	}
	return dialer
}

// CreateKafkaTransport создает транспорт для записи (kafka.Writer)
func CreateKafkaTransport(auth KafkaAuth) *kafka.Transport {
	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		SASL:        auth.mechanism(),
		TLS:         auth.tlsConfig(),
	}
}

// ParseKafkaBrokers парсит строку с брокерами через запятую
func ParseKafkaBrokers(brokers string) []string {
	result := []string{}
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
