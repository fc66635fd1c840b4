package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"fabrica/server/internal/api"
	"fabrica/server/internal/config"
	"fabrica/server/internal/database"
	"fabrica/server/internal/logger"
	"fabrica/server/internal/metrics"
	"fabrica/server/internal/services"
	"fabrica/server/internal/utils"
)

func main() {
	// .env не обязателен: в production переменные приходят из окружения
	envErr := godotenv.Load()

	cfg := config.Load()

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: api.ServiceName,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.GetLogger()

	if envErr != nil {
		log.Info("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Info("✅ Переменные окружения загружены из .env файла")
	}
	log.Info("📋 DATABASE_URL", zap.String("url", maskCredentials(cfg.DatabaseURL)))

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	// Хранилище: PostgreSQL, без него - память
	var store services.Store
	db, err := database.ConnectPostgres(database.PostgresOptionsFromConfig(cfg))
	if err != nil {
		log.Warn("❌ PostgreSQL недоступен, данные хранятся в памяти процесса", zap.Error(err))
		store = database.NewMemoryStore()
	} else {
		defer database.ClosePostgres(db)
		if err := database.Migrate(db); err != nil {
			log.Fatal("❌ Migration failed", zap.Error(err))
		}
		log.Info("✅ Database migrations completed")
		store = database.NewGormStore(db)
	}

	parser := services.NewNumericParser(cfg.DotDecimalMaxDigits)
	normalizer := services.NewCurrencyNormalizer(cfg.DefaultUSDARSRate)
	fifo := services.NewFIFOCalculator(store, store, cfg.FIFOFanoutLimit)
	simulations := services.NewSimulationService(store, fifo, services.NewCostBreakdownCalculator(normalizer))
	pipeline := services.NewImportPipeline(store, parser, normalizer)
	purchases := services.NewPurchaseService(store, store, normalizer)

	// Итоги импорта в Redis (опционально)
	var jobs api.ImportJobReader
	redisClient, err := database.ConnectRedis(database.RedisOptionsFromConfig(cfg))
	if err != nil {
		log.Warn("⚠️ Redis недоступен, итоги импорта не сохраняются", zap.Error(err))
	} else {
		defer database.CloseRedis(redisClient)
		jobStore := services.NewImportJobStore(utils.NewRedisClient(redisClient), cfg.ImportJobTTL)
		pipeline.AddObserver(jobStore)
		jobs = jobStore
	}

	hub := api.NewHub()
	go hub.Run(ctx)
	pipeline.AddObserver(hub)

	// Kafka: исходящие события и входящие поступления
	brokers := api.ParseKafkaBrokers(cfg.KafkaBrokers)
	if len(brokers) > 0 {
		auth := api.KafkaAuth{Username: cfg.KafkaUsername, Password: cfg.KafkaPassword, CACert: cfg.KafkaCACert}

		publisher := api.NewKafkaEventPublisher(brokers, cfg.KafkaEventsTopic, auth)
		defer publisher.Close()
		pipeline.AddObserver(publisher)
		purchases.AddObserver(publisher)

		consumer := api.NewKafkaPurchaseConsumer(brokers, cfg.KafkaPurchasesTopic, auth, purchases)
		defer consumer.Close()
		go consumer.Run(ctx)
		log.Info("📡 Kafka подключена", zap.Strings("brokers", brokers))
	} else {
		log.Warn("⚠️ KAFKA_BROKERS не установлен, события не публикуются")
	}

	router := api.SetupRouter(api.Controllers{
		Imports:     api.NewImportController(pipeline, jobs),
		Simulations: api.NewSimulationController(simulations, normalizer),
		Materials:   api.NewMaterialController(simulations, fifo),
		Purchases:   api.NewPurchaseController(purchases),
		Hub:         hub,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.LoggingUnaryInterceptor(log)))
	api.RegisterCostingServiceServer(grpcServer, api.NewCostingGRPCServer(simulations))

	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Fatal("failed to listen gRPC", zap.Error(err))
		}
		log.Info("📡 gRPC Server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	go func() {
		log.Info("🚀 Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Получен сигнал остановки, завершаем работу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("⚠️ HTTP сервер остановлен с ошибкой", zap.Error(err))
	}
	grpcServer.GracefulStop()
}

// maskCredentials скрывает логин и пароль в строке подключения
func maskCredentials(url string) string {
	if idx := strings.Index(url, "@"); idx > 0 {
		if schemeIdx := strings.Index(url, "://"); schemeIdx > 0 {
			return url[:schemeIdx+3] + "***@" + url[idx+1:]
		}
	}
	return url
}
