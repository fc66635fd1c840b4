package database

import (
	"context"
	"fmt"
	"time"

	"fabrica/server/internal/config"
	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresOptions параметры подключения и пула
type PostgresOptions struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SlowQuery       time.Duration // 0 - медленные запросы не логируются
}

// PostgresOptionsFromConfig собирает параметры из конфигурации сервиса
func PostgresOptionsFromConfig(cfg *config.Config) PostgresOptions {
	return PostgresOptions{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: time.Minute,
		SlowQuery:       cfg.DBSlowQuery,
	}
}

// ConnectPostgres подключается к PostgreSQL и возвращает *gorm.DB
func ConnectPostgres(opts PostgresOptions) (*gorm.DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		Logger: newGormLogger(logger.GetLogger(), opts.SlowQuery),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Импорт пишет построчно, расчеты читают пачками: пул небольшой
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.GetLogger().Info("✅ PostgreSQL подключен успешно",
		zap.Int("max_open_conns", opts.MaxOpenConns),
		zap.Duration("slow_query", opts.SlowQuery))
	return db, nil
}

// Migrate создает таблицы движка себестоимости
func Migrate(db *gorm.DB) error {
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	logger.GetLogger().Info("✅ Миграции применены")
	return nil
}

// ClosePostgres закрывает соединение с PostgreSQL
func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter пишет сообщения gorm в zap
type gormWriter struct {
	log *zap.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn("⚠️ "+fmt.Sprintf(format, args...), zap.String("component", "gorm"))
}

// newGormLogger логирует только медленные запросы и ошибки; "record not found" не ошибка
func newGormLogger(log *zap.Logger, slow time.Duration) gormlogger.Interface {
	if slow <= 0 {
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return gormlogger.New(gormWriter{log: log}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
