// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/config"
	"github.com/unclebandit/mailing-service/internal/db"
	"github.com/unclebandit/mailing-service/internal/handler"
	"github.com/unclebandit/mailing-service/internal/logger"
	"github.com/unclebandit/mailing-service/internal/queue"
	"github.com/unclebandit/mailing-service/internal/repository"
	"github.com/unclebandit/mailing-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Server.Environment)
	defer func() { _ = log.Sync() }()
	if !cfg.DotEnvLoaded {
		log.Info("no .env file found, relying on OS environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, log); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	store := repository.NewSQLStore(conn)
	ledger := service.NewLedger(time.Now, log)

	var runner queue.Runner
	switch cfg.Queue.Backend {
	case config.QueueBackendAMQP:
		amqpConn, err := amqp.Dial(cfg.Queue.AMQPURL)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer amqpConn.Close()
		ch, err := amqpConn.Channel()
		if err != nil {
			log.Fatal("failed to open a channel", zap.Error(err))
		}
		defer ch.Close()

		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}

		runner, err = queue.NewAMQPRunner(ch, cfg.Queue.QueueName, queue.NewRedisRegistry(rdb), log)
		if err != nil {
			log.Fatal("failed to set up dispatch queue", zap.Error(err))
		}
		log.Info("dispatching through RabbitMQ, run cmd/worker to consume", zap.String("queue", cfg.Queue.QueueName))

	default:
		mem := queue.NewInMemoryRunner(log)
		mem.MaxRetries = cfg.Queue.MaxRetries
		worker := service.NewDispatchWorker(store, ledger, &service.LogSender{Log: log}, time.Now, log)
		mem.Subscribe(worker.Run)
		defer mem.Close()
		runner = mem
		log.Info("dispatching in-process")
	}

	lifecycle := service.NewLifecycle(ledger, service.NewScheduler(runner, cfg.TimeZone, log), time.Now, log)
	mailingService := &service.MailingService{Store: store, Lifecycle: lifecycle, Log: log}

	if cfg.Queue.Backend == config.QueueBackendMemory {
		armed, err := mailingService.RecoverJobs(ctx)
		if err != nil {
			log.Fatal("failed to recover scheduled mailings", zap.Error(err))
		}
		log.Info("scheduled mailings recovered", zap.Int("armed", armed))
	}

	router := handler.NewRouter(handler.Services{
		Mailings: mailingService,
		Clients:  &service.ClientService{Store: store},
		Messages: &service.MessageService{Store: store},
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server running", zap.String("addr", srv.Addr), zap.String("time_zone", cfg.TimeZone.String()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server stopped")
}
