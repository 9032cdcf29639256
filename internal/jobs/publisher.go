package jobs

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "wordnest:jobs:"

// Channel はジョブの通知チャンネル名を返します。
func Channel(jobID string) string {
	return channelPrefix + jobID
}

// Event はクライアントへ配信するジョブの状態です。
type Event struct {
	JobID       string          `json:"jobId"`
	Status      Status          `json:"status"`
	Story       json.RawMessage `json:"story,omitempty"`
	Translation json.RawMessage `json:"translation,omitempty"`
	NewWords    json.RawMessage `json:"newWords,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Placeholder は接続直後に返す暫定の状態です。
func Placeholder(jobID string) Event {
	return Event{JobID: jobID, Status: StatusPending}
}

// EventFromRecord はジョブレコードから配信用のイベントを作ります。
func EventFromRecord(record *Record) Event {
	ev := Event{JobID: record.ID, Status: record.Status}
	if record.Error != nil {
		ev.Error = *record.Error
	}
	if len(record.Result) == 0 {
		return ev
	}
	switch record.Type {
	case KindTranslation:
		ev.Translation = record.Result
	case KindStory:
		var parts struct {
			Story    json.RawMessage `json:"story"`
			NewWords json.RawMessage `json:"newWords"`
		}
		if err := json.Unmarshal(record.Result, &parts); err == nil {
			ev.Story = parts.Story
			ev.NewWords = parts.NewWords
		}
	}
	return ev
}

// Publisher はジョブの終了を通知します。通知の失敗は呼び出し側へ返しません。
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher は Redis Pub/Sub でイベントを配信します。
type RedisPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher は RedisPublisher を作成します。
func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, logger: logger.Named("publisher")}
}

// Publish はイベントを配信します。購読者がいなくても失敗にはしません。
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to encode job event", zap.String("job_id", ev.JobID), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel(ev.JobID), payload).Err(); err != nil {
		p.logger.Warn("Failed to publish job event", zap.String("job_id", ev.JobID), zap.Error(err))
	}
}

// Subscribe はジョブのイベントを購読します。呼び出し側で Close してください。
func (p *RedisPublisher) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, Channel(jobID))
}
