package jobs

import (
	"encoding/json"
	"time"
)

// Kind はジョブの種類を表します。
type Kind string

const (
	KindStory       Kind = "story"
	KindTranslation Kind = "translation"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終了状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canTransition は状態遷移が許されるかを返します。
// pending → processing → completed | failed の一方向だけを許します。
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Record はジョブの現在状態を表します。
type Record struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        Kind            `json:"type"`
	Status      Status          `json:"status"`
	Input       json.RawMessage `json:"input"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SubmitResponse は投入直後に返す応答です。
type SubmitResponse struct {
	JobID  string `json:"jobId"`
	Status Status `json:"status"`
}
