package database

import (
	"context"
	"fmt"
	"time"

	"fabrica/server/internal/config"
	"fabrica/server/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions параметры подключения к Redis. Итоги импорта - редкие короткие записи,
// поэтому пул маленький
type RedisOptions struct {
	URL           string
	SentinelAddrs []string
	MasterName    string
	Password      string // Пароль мастера при работе через Sentinel
	PoolSize      int
	MinIdleConns  int
	MaxRetries    int
}

// RedisOptionsFromConfig собирает параметры из конфигурации сервиса
func RedisOptionsFromConfig(cfg *config.Config) RedisOptions {
	return RedisOptions{
		URL:           cfg.RedisURL,
		SentinelAddrs: cfg.RedisSentinelAddrs,
		MasterName:    cfg.RedisMasterName,
		Password:      cfg.RedisPassword,
		PoolSize:      cfg.RedisPoolSize,
		MinIdleConns:  cfg.RedisMinIdleConns,
		MaxRetries:    3,
	}
}

// useSentinel Sentinel включается, только если заданы адреса и имя мастера
func (o RedisOptions) useSentinel() bool {
	return len(o.SentinelAddrs) > 0 && o.MasterName != ""
}

// universalOptions переводит параметры в опции go-redis. Прямое подключение
// разбирает URL, Sentinel - адреса и имя мастера
func (o RedisOptions) universalOptions() (*redis.UniversalOptions, error) {
	uo := &redis.UniversalOptions{
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		MaxRetries:   o.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if o.useSentinel() {
		uo.MasterName = o.MasterName
		uo.Addrs = o.SentinelAddrs
		uo.Password = o.Password
		return uo, nil
	}

	parsed, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	uo.Addrs = []string{parsed.Addr}
	uo.Username = parsed.Username
	uo.Password = parsed.Password
	uo.DB = parsed.DB
	uo.TLSConfig = parsed.TLSConfig
	return uo, nil
}

// ConnectRedis подключается к Redis напрямую или через Sentinel и проверяет соединение
func ConnectRedis(opts RedisOptions) (redis.UniversalClient, error) {
	uo, err := opts.universalOptions()
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	if opts.useSentinel() {
		client = redis.NewFailoverClient(uo.Failover())
	} else {
		client = redis.NewClient(uo.Simple())
	}

	// Sentinel отвечает дольше прямого подключения
	timeout := 5 * time.Second
	if opts.useSentinel() {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if opts.useSentinel() {
		logger.GetLogger().Info("✅ Redis Sentinel connected successfully",
			zap.String("master", opts.MasterName),
			zap.Strings("sentinels", opts.SentinelAddrs))
	} else {
		logger.GetLogger().Info("✅ Redis connected successfully (direct connection)")
	}
	return client, nil
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client redis.UniversalClient) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
