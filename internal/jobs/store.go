package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"

	maxTransitionAttempts = 10
)

var (
	// ErrNotFound はジョブが存在しない（破棄済み・期限切れを含む）ことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrExists は同じ ID のジョブが既に存在することを表します。
	ErrExists = errors.New("job already exists")
	// ErrInvalidTransition は現在の状態から要求された状態へ遷移できないことを表します。
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store はジョブ状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewStore は Store を作成します。ttl が 0 の場合レコードは期限切れになりません。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Get はジョブ情報を取得します。存在しない場合は nil, nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create は新しいジョブを保存します。同じ ID が既にあれば ErrExists を返します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record.ID is required")
	}
	now := s.now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(record.ID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Discard はジョブを削除します。投入に失敗したジョブの後始末に使います。
func (s *Store) Discard(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, jobKey(jobID)).Err()
}

// MarkProcessing は pending のジョブを processing にします。
// 既に処理中・終了済みの場合は ErrInvalidTransition を返します。
func (s *Store) MarkProcessing(ctx context.Context, jobID string) (*Record, error) {
	return s.transition(ctx, jobID, StatusProcessing, nil)
}

// MarkCompleted は結果を保存して completed にします。
// errMsg が空でなければ代替結果を使った理由として記録します。
func (s *Store) MarkCompleted(ctx context.Context, jobID string, result any, errMsg string) (*Record, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return s.transition(ctx, jobID, StatusCompleted, func(record *Record) {
		record.Result = payload
		if errMsg != "" {
			record.Error = &errMsg
		} else {
			record.Error = nil
		}
	})
}

// MarkFailed はジョブを failed にします。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errMsg string) (*Record, error) {
	return s.transition(ctx, jobID, StatusFailed, func(record *Record) {
		record.Result = nil
		record.Error = &errMsg
	})
}

// transition は WATCH/MULTI で状態を比較しながら更新します。
// 同時に複数の配信が同じジョブを掴んでも、遷移に成功するのは 1 つだけです。
func (s *Store) transition(ctx context.Context, jobID string, to Status, mutate func(*Record)) (*Record, error) {
	key := jobKey(jobID)
	var updated Record

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if !canTransition(record.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, to)
		}

		now := s.now().UTC()
		record.Status = to
		if to.Terminal() {
			record.CompletedAt = &now
		}
		if mutate != nil {
			mutate(&record)
		}
		record.UpdatedAt = now

		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if s.ttl > 0 {
				pipe.Set(ctx, key, payload, s.ttl)
			} else {
				pipe.Set(ctx, key, payload, redis.KeepTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = record
		return nil
	}

	for i := 0; i < maxTransitionAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("job %s: too many concurrent updates", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
