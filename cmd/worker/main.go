// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/config"
	"github.com/unclebandit/mailing-service/internal/db"
	"github.com/unclebandit/mailing-service/internal/logger"
	"github.com/unclebandit/mailing-service/internal/queue"
	"github.com/unclebandit/mailing-service/internal/repository"
	"github.com/unclebandit/mailing-service/internal/service"
)

// The worker consumes dispatch jobs published by the server when
// QUEUE_BACKEND=amqp.
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

	store := repository.NewSQLStore(conn)
	worker := service.NewDispatchWorker(
		store,
		service.NewLedger(time.Now, log),
		&service.LogSender{Log: log},
		time.Now,
		log,
	)

	// Connect to RabbitMQ
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

	consumer := queue.NewConsumer(ch, cfg.Queue.QueueName, queue.NewRedisRegistry(rdb), worker.Run, log)
	consumer.MaxRetries = cfg.Queue.MaxRetries

	if err := consumer.Run(ctx); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}
