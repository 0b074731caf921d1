package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"vitrine/internal/config"
	"vitrine/internal/handlers"
	"vitrine/internal/mailer"
	"vitrine/internal/middleware"
	"vitrine/internal/repositories"
	"vitrine/internal/services"
	"vitrine/pkg/logger"
	"vitrine/pkg/rabbitmq"
)

const (
	mongoConnectTimeout = 10 * time.Second
	mongoPingTimeout    = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel)
	defer zlog.Sync()

	// --- MongoDB ---
	mongoClient, err := connectMongo(cfg.MongoURI)
	if err != nil {
		zlog.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.MongoDatabase)

	// --- Redis (token revocation) ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		zlog.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// --- RabbitMQ ---
	mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
	if err != nil {
		zlog.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqClient.Close()

	// --- Mailer ---
	var mail mailer.Mailer = mailer.Noop{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPEmail,
			Password: cfg.SMTPPassword,
		})
	} else {
		zlog.Warn("SMTP not configured, transactional mail disabled")
	}

	// --- Repositories ---
	userRepo, err := repositories.NewMongoUserRepository(db)
	if err != nil {
		zlog.Fatal("failed to initialize user repository", zap.Error(err))
	}
	orderRepo, err := repositories.NewMongoOrderRepository(db)
	if err != nil {
		zlog.Fatal("failed to initialize order repository", zap.Error(err))
	}
	blacklist := repositories.NewRedisTokenBlacklist(redisClient)

	// --- Services ---
	authService := services.NewAuthService(userRepo, orderRepo, blacklist, mail, zlog, cfg.JWTSecret, cfg.TokenTTL)
	orderService := services.NewOrderService(orderRepo, userRepo, mqClient, zlog)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService, cfg.TokenTTL)
	orderHandler := handlers.NewOrderHandler(orderService)
	userHandler := handlers.NewUserHandler(authService)

	// --- Fiber app ---
	app := fiber.New()
	app.Use(fiberlogger.New())

	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService))
	authHandler.RegisterProtectedRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	userHandler.RegisterRoutes(protected)

	admin := apiV1.Group("", middleware.AuthRequired(authService), middleware.AdminRequired())
	orderHandler.RegisterAdminRoutes(admin)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Order event consumer: drives confirmation mail ---
	go func() {
		zlog.Info("starting order event consumer")
		err := mqClient.ConsumeOrderEvents(func(event rabbitmq.OrderEvent) error {
			if event.Type != rabbitmq.EventOrderCreated {
				return nil
			}
			if err := mail.SendOrderConfirmation(event.Email, event.OrderNumber, event.Total); err != nil {
				zlog.Warn("failed to send order confirmation",
					zap.String("order_number", event.OrderNumber), zap.Error(err))
			}
			// Mail is best-effort; never requeue on its account.
			return nil
		})
		if err != nil {
			zlog.Error("order event consumer stopped", zap.Error(err))
		}
	}()

	// --- Start HTTP server ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		zlog.Info("starting server", zap.String("port", cfg.AppPort))
		if err := app.Listen(cfg.AppPort); err != nil {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-quit
	zlog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
	zlog.Info("server stopped")
}

// connectMongo establishes and pings the MongoDB connection with bounded
// timeouts.
func connectMongo(uri string) (*mongo.Client, error) {
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancelConnect()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), mongoPingTimeout)
	defer cancelPing()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
