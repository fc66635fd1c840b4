package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"fabrica/server/internal/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const importJobKeyPrefix = "import:job:"

// ImportJobStore хранит итоги импорта в Redis по job id
type ImportJobStore struct {
	redis *utils.RedisClient
	ttl   time.Duration
}

// NewImportJobStore создает хранилище итогов
func NewImportJobStore(client *utils.RedisClient, ttl time.Duration) *ImportJobStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &ImportJobStore{redis: client, ttl: ttl}
}

func importJobKey(jobID string) string {
	return importJobKeyPrefix + jobID
}

// Save сохраняет снимок итогов
func (s *ImportJobStore) Save(ctx context.Context, result models.ImportResult) error {
	return s.redis.Set(ctx, importJobKey(result.JobID), result, s.ttl)
}

// Get загружает итоги; неизвестный или истекший job - ErrNotFound
func (s *ImportJobStore) Get(ctx context.Context, jobID string) (*models.ImportResult, error) {
	var result models.ImportResult
	if err := s.redis.GetJSON(ctx, importJobKey(jobID), &result); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения итогов импорта: %w", err)
	}
	return &result, nil
}

// ImportStateChanged сохраняет каждое состояние импорта
func (s *ImportJobStore) ImportStateChanged(ctx context.Context, result models.ImportResult) {
	if err := s.Save(ctx, result); err != nil {
		logger.FromContext(ctx).Warn("⚠️ Не удалось сохранить итоги импорта в Redis",
			zap.String("job_id", result.JobID), zap.Error(err))
	}
}
