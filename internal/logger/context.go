package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contextKey string

const loggerKey contextKey = "logger"

const ginLoggerKey = "logger"

// FromContext достает логгер из контекста, иначе глобальный
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return GetLogger()
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		return GetLogger()
	}
	return logger
}

// WithContext кладет логгер в контекст
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromGin достает логгер запроса из gin.Context
func FromGin(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if logger, ok := v.(*zap.Logger); ok {
			return logger
		}
	}
	return GetLogger()
}
