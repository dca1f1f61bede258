package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"uniformcheck/internal/check"
	"uniformcheck/internal/config"
	"uniformcheck/internal/logging"
	"uniformcheck/internal/notify"
	"uniformcheck/internal/queue"
	"uniformcheck/internal/report"
	"uniformcheck/internal/store"
)

// Worker consumes violation events and delivers webhook notifications.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "uniform:violations")
	}

	repo := check.NewRepository(db.Client)
	webhook := notify.NewWebhook(cfg.ViolationWebhookURL)
	if !webhook.Enabled() {
		logger.Warn("no violation webhook configured, events will be logged only")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for violation events")
	for msg := range messages {
		if msg.Type != "violation" {
			continue
		}

		checkID, err := strconv.ParseInt(string(msg.Body), 10, 64)
		if err != nil {
			logger.Warn("bad violation message", zap.ByteString("body", msg.Body))
			continue
		}

		row, err := repo.GetCheck(ctx, checkID)
		if err != nil {
			logger.Warn("fetch check failed", zap.Int64("check_id", checkID), zap.Error(err))
			continue
		}

		violation := notify.Violation{
			CheckID:      row.ID,
			StudentID:    row.StudentID,
			StudentName:  row.StudentName,
			CheckTime:    row.CheckTime.Format("2006-01-02 03:04 PM"),
			MissingItems: report.MissingItems(row.BlazerOrSuit, row.Tie, row.WhiteShirt, row.IDCard),
			ImagePath:    row.ImagePath,
		}

		if !webhook.Enabled() {
			logger.Info("uniform violation",
				zap.Int64("check_id", row.ID),
				zap.String("student", row.StudentName),
				zap.Strings("missing", violation.MissingItems))
			continue
		}

		if err := webhook.Notify(ctx, violation); err != nil {
			logger.Warn("webhook delivery failed", zap.Int64("check_id", row.ID), zap.Error(err))
			continue
		}
		logger.Info("violation notified", zap.Int64("check_id", row.ID))
	}

	logger.Info("worker stopped")
}
