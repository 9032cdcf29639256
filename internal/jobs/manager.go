package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/config"
)

const (
	TaskTypeJobCreated         = "job:created"
	TaskTypeJobBatch           = "job:batch"
	TaskTypeArchiveAssignments = "maintenance:archive-assignments"

	queueGeneration  = "generation"
	queueMaintenance = "maintenance"
	groupJobInserts  = "job-inserts"

	notifyMaxRetry = 3
)

// Archiver は期限切れの課題をアーカイブします。
type Archiver interface {
	ArchiveExpired(ctx context.Context, before time.Time) (int64, error)
}

// Manager はジョブ作成イベントの投入と、ワーカー・定期タスクの起動を担います。
type Manager struct {
	cfg       *config.Config
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	processor *Processor
	archiver  Archiver
	logger    *zap.Logger
}

// TaskPayload はジョブ作成イベントのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
	Type  Kind   `json:"type"`
}

// BatchPayload はまとめられたジョブ作成イベントのペイロードです。
type BatchPayload struct {
	Jobs []TaskPayload `json:"jobs"`
}

// NewManager は Manager を初期化します。archiver が nil の場合は定期メンテナンスを登録しません。
func NewManager(cfg *config.Config, processor *Processor, archiver Archiver, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	grace := time.Duration(cfg.JobBatchGraceSeconds) * time.Second
	if grace < time.Second {
		// asynq は 1 秒未満の猶予を受け付けない
		grace = time.Second
	}

	asynqLogger := logger.Named("asynq").Sugar()
	client := asynq.NewClient(opt)
	manager := &Manager{
		cfg:       cfg,
		client:    client,
		mux:       asynq.NewServeMux(),
		processor: processor,
		archiver:  archiver,
		logger:    logger.Named("jobs"),
	}

	serverCfg := asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueGeneration:  3,
			queueMaintenance: 1,
		},
		Logger: asynqLogger,
	}
	if cfg.JobBatchSize > 1 {
		serverCfg.GroupAggregator = asynq.GroupAggregatorFunc(manager.aggregate)
		serverCfg.GroupMaxSize = cfg.JobBatchSize
		serverCfg.GroupGracePeriod = grace
		serverCfg.GroupMaxDelay = 10 * grace
	}
	manager.server = asynq.NewServer(opt, serverCfg)

	manager.mux.HandleFunc(TaskTypeJobCreated, manager.handleJobCreated)
	manager.mux.HandleFunc(TaskTypeJobBatch, manager.handleJobBatch)

	if archiver != nil && cfg.MaintenanceCron != "" {
		manager.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{
			Logger:   asynqLogger,
			Location: time.UTC,
		})
		task := asynq.NewTask(TaskTypeArchiveAssignments, nil)
		if _, err := manager.scheduler.Register(cfg.MaintenanceCron, task, asynq.Queue(queueMaintenance), asynq.MaxRetry(1)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to register maintenance task: %w", err)
		}
		manager.mux.HandleFunc(TaskTypeArchiveAssignments, manager.handleArchiveAssignments)
	}

	return manager, nil
}

// StartWorkers は Asynq サーバーと定期タスクをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", zap.Error(err))
		}
	}()
	if m.scheduler != nil {
		if err := m.scheduler.Start(); err != nil {
			m.logger.Error("asynq scheduler failed to start", zap.Error(err))
		}
	}
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Shutdown()
	}
	m.server.Shutdown()
	return m.client.Close()
}

// Notify はジョブ作成イベントをキューに投入します。
func (m *Manager) Notify(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	body, err := json.Marshal(TaskPayload{JobID: record.ID, Type: record.Type})
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(queueGeneration),
		asynq.MaxRetry(notifyMaxRetry),
		asynq.Timeout(m.timeoutFor(record.Type)),
	}
	if m.cfg.JobBatchSize > 1 {
		opts = append(opts, asynq.Group(groupJobInserts))
	}

	task := asynq.NewTask(TaskTypeJobCreated, body, opts...)
	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	m.logger.Debug("Job event enqueued", zap.String("job_id", record.ID), zap.String("task_id", info.ID))
	return nil
}

func (m *Manager) timeoutFor(kind Kind) time.Duration {
	secs := m.cfg.StoryJobTimeoutSeconds
	if kind == KindTranslation {
		secs = m.cfg.TranslationJobTimeoutSecs
	}
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// aggregate はグループ化されたジョブ作成イベントを 1 つのバッチタスクにまとめます。
// 実行上限は含まれるジョブの上限の合計です。
func (m *Manager) aggregate(group string, tasks []*asynq.Task) *asynq.Task {
	batch := BatchPayload{Jobs: make([]TaskPayload, 0, len(tasks))}
	var timeout time.Duration
	for _, t := range tasks {
		var p TaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			m.logger.Warn("Dropping malformed job event", zap.String("group", group), zap.Error(err))
			continue
		}
		batch.Jobs = append(batch.Jobs, p)
		timeout += m.timeoutFor(p.Type)
	}
	if timeout == 0 {
		timeout = m.timeoutFor(KindStory)
	}
	body, _ := json.Marshal(batch)
	return asynq.NewTask(TaskTypeJobBatch, body, asynq.MaxRetry(notifyMaxRetry), asynq.Timeout(timeout))
}

func (m *Manager) handleJobCreated(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}
	return m.processor.Process(ctx, payload.JobID)
}

func (m *Manager) handleJobBatch(ctx context.Context, task *asynq.Task) error {
	var payload BatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	ids := make([]string, 0, len(payload.Jobs))
	for _, j := range payload.Jobs {
		if j.JobID != "" {
			ids = append(ids, j.JobID)
		}
	}
	return m.processor.ProcessBatch(ctx, ids)
}

func (m *Manager) handleArchiveAssignments(ctx context.Context, task *asynq.Task) error {
	days := m.cfg.AssignmentArchiveDays
	if days <= 0 {
		return nil
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	n, err := m.archiver.ArchiveExpired(ctx, before)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("Archived expired assignments", zap.Int64("count", n), zap.Time("before", before))
	}
	return nil
}
