package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/routes"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/ws"
	pkgcache "github.com/damoang/angple-chat/pkg/cache"
	"github.com/damoang/angple-chat/pkg/jwt"
	pkgkafka "github.com/damoang/angple-chat/pkg/kafka"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	pkgredis "github.com/damoang/angple-chat/pkg/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title Angple Chat API
// @version 1.0
// @description 실시간 그룹 채팅 데이터 계층 API (대화, 메시지, 반응, 읽음, 입력중, 접속 상태)
//
// @host localhost:8090
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	// 로거 초기화
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	// 설정 로드
	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MySQL 연결 (채팅은 DB 없이 동작할 수 없으므로 재시도 후 종료)
	db, err := connectDB(rootCtx, cfg)
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		pkglogger.Fatal("Migration failed: %v", err)
	}

	// Redis 연결 (없으면 단일 인스턴스 모드)
	redisClient, err := pkgredis.NewClient(rootCtx, pkgredis.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}
	cacheService := pkgcache.NewService(redisClient)

	// WebSocket Hub
	hub := ws.NewHub(redisClient)

	// 이벤트 발행: hub + (선택) kafka
	publisher := events.Multi{hub}
	var producer *pkgkafka.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer = pkgkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = append(publisher, events.NewKafkaPublisher(producer))
		pkglogger.Info("Kafka event mirror enabled: topic=%s", cfg.Kafka.Topic)
	}

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn, cfg.JWT.RefreshIn)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	receiptRepo := repository.NewReadReceiptRepository(db)
	typingRepo := repository.NewTypingRepository(db)

	// Services
	presenceTimeout := cfg.Chat.PresenceTimeout()
	userService := service.NewUserService(userRepo, cacheService, presenceTimeout)
	conversationService := service.NewConversationService(convRepo, userRepo, messageRepo, receiptRepo, publisher, presenceTimeout)

	var responder *service.AIResponder
	var scheduler service.AIScheduler
	if cfg.AI.Enabled {
		responder = service.NewAIResponder(convRepo, messageRepo, userRepo, publisher, service.AIOptions{
			BaseURL:         cfg.AI.BaseURL,
			APIKey:          cfg.AI.APIKey,
			Model:           cfg.AI.Model,
			HistoryLimit:    cfg.AI.HistoryLimit,
			Timeout:         time.Duration(cfg.AI.TimeoutSec) * time.Second,
			RatePerMinute:   cfg.AI.RatePerMinute,
			BreakerFailures: cfg.AI.BreakerFailures,
			BreakerOpen:     time.Duration(cfg.AI.BreakerOpenSec) * time.Second,
		})
		scheduler = responder
		pkglogger.Info("AI responder enabled: model=%s", cfg.AI.Model)
	}

	messageService := service.NewMessageService(messageRepo, convRepo, reactionRepo, publisher, scheduler, service.MessageOptions{
		TriggerToken:    cfg.Chat.TriggerToken,
		PresenceTimeout: presenceTimeout,
	})
	typingService := service.NewTypingService(typingRepo, convRepo, publisher, cfg.Chat.TypingWindow())
	receiptService := service.NewReadReceiptService(receiptRepo, convRepo, publisher)

	// Handlers
	wsHandler := handler.NewWSHandler(hub, userService, cfg.CORS.AllowOrigins)
	hub.OnDisconnect(wsHandler.Disconnected)
	go hub.Run()

	handlers := routes.Handlers{
		User:         handler.NewUserHandler(userService),
		Conversation: handler.NewConversationHandler(conversationService),
		Message:      handler.NewMessageHandler(messageService),
		Activity:     handler.NewActivityHandler(typingService, receiptService),
		WS:           wsHandler,
	}

	// Gin 라우터 생성
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS 설정
	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.SplitAndTrim(allowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:           86400,
	}))

	// Middleware
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "down"
		}
		c.JSON(status, gin.H{
			"status":  dbStatus,
			"service": "angple-chat",
			"redis":   redisClient != nil,
			"time":    time.Now().Unix(),
		})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.Setup(router, handlers, jwtManager, userService, routes.Options{
		RedisClient:       redisClient,
		SendRatePerMinute: cfg.Chat.SendRatePerMinute,
		SyncRatePerMinute: cfg.Chat.SyncRatePerMinute,
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	go observeDB(rootCtx, db)

	// 서버 시작
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		pkglogger.Info("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkglogger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-rootCtx.Done()
	pkglogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("HTTP shutdown: %v", err)
	}
	if responder != nil {
		responder.Wait()
	}
	hub.Stop()
	if producer != nil {
		if err := producer.Close(); err != nil {
			pkglogger.Error("Kafka producer close: %v", err)
		}
	}
	closeRedis(redisClient)
	pkglogger.Info("Server stopped")
}

// connectDB MySQL 연결을 지수 백오프로 재시도한다
func connectDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	var db *gorm.DB
	operation := func() error {
		var err error
		db, err = initDB(cfg)
		if err != nil {
			pkglogger.Warn("MySQL connect failed: %v (retrying)", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 60 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return db, nil
}

// initDB MySQL 연결 초기화
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("DSN 파싱 실패: %w", err))
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	// 채팅 타임스탬프는 UTC 로 저장한다
	mysqlCfg.Params["time_zone"] = "'+00:00'"
	mysqlCfg.Loc = time.UTC

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}

// observeDB 커넥션 풀 상태를 주기적으로 게이지에 반영
func observeDB(ctx context.Context, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			middleware.ObserveDBStats(sqlDB.Stats())
		}
	}
}

func closeRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		pkglogger.Error("Redis close: %v", err)
	}
}
