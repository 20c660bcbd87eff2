// Command authcore-sweep deactivates expired cancellation suspensions and
// reactivates the affected accounts. Run it from cron or a scheduler;
// each run is a single sweep.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/velobay/authcore"
	"github.com/velobay/authcore/postgres"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := postgres.Connect(ctx, dsn)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()

	engine, err := authcore.New().
		WithRedis(rdb).
		WithDurableStore(store).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Fatal("engine build failed", zap.Error(err))
	}
	defer engine.Close()

	reactivated, err := engine.SweepExpiredSuspensions(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	logger.Info("sweep complete", zap.Int("reactivated", reactivated))
}
