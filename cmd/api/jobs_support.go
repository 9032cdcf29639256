package main

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/wordnest/internal/ai"
	"github.com/yourusername/wordnest/internal/jobs"
	"github.com/yourusername/wordnest/internal/story"
	"github.com/yourusername/wordnest/internal/translation"
)

// jobSupport は非同期ジョブまわりの部品をまとめたものです。
type jobSupport struct {
	rdb       *redis.Client
	store     *jobs.Store
	publisher *jobs.RedisPublisher
	manager   *jobs.Manager
	submitter *jobs.Submitter
	generator ai.Generator
}

func setupJobs(ctx context.Context, app *application) (*jobSupport, error) {
	opt, err := redis.ParseURL(app.cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opt)

	generator, err := ai.New(ctx, app.cfg)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to init AI provider: %w", err)
	}

	store := jobs.NewStore(redisClient, app.cfg.JobRetention())
	publisher := jobs.NewRedisPublisher(redisClient, app.logger)
	processor := jobs.NewProcessor(
		store,
		story.NewService(app.store, generator, app.badges, app.logger),
		translation.NewService(generator),
		publisher,
		app.logger,
	)

	manager, err := jobs.NewManager(app.cfg, processor, app.store, app.logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	return &jobSupport{
		rdb:       redisClient,
		store:     store,
		publisher: publisher,
		manager:   manager,
		submitter: jobs.NewSubmitter(store, manager, app.logger),
		generator: generator,
	}, nil
}

func (js *jobSupport) close(ctx context.Context) error {
	return errors.Join(js.manager.Shutdown(ctx), js.rdb.Close())
}
