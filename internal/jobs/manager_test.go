package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/wordnest/internal/config"
	"github.com/yourusername/wordnest/internal/translation"
)

type stubArchiver struct {
	before time.Time
	calls  int
}

func (a *stubArchiver) ArchiveExpired(_ context.Context, before time.Time) (int64, error) {
	a.calls++
	a.before = before
	return 2, nil
}

func newTestManager(t *testing.T, f *processorFixture, archiver Archiver) *Manager {
	t.Helper()
	mr, _ := newTestRedis(t)
	cfg := &config.Config{
		QueueRedisURL:             "redis://" + mr.Addr() + "/0",
		JobBatchSize:              5,
		JobBatchGraceSeconds:      0,
		WorkerConcurrency:         2,
		StoryJobTimeoutSeconds:    300,
		TranslationJobTimeoutSecs: 60,
		AssignmentArchiveDays:     30,
		MaintenanceCron:           "@every 1h",
	}
	m, err := NewManager(cfg, f.processor, archiver, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestAggregateBuildsBatch(t *testing.T) {
	m := newTestManager(t, newProcessorFixture(t), nil)

	tasks := []*asynq.Task{
		asynq.NewTask(TaskTypeJobCreated, []byte(`{"jobId":"a","type":"story"}`)),
		asynq.NewTask(TaskTypeJobCreated, []byte(`not json`)),
		asynq.NewTask(TaskTypeJobCreated, []byte(`{"jobId":"b","type":"translation"}`)),
	}
	batch := m.aggregate(groupJobInserts, tasks)
	assert.Equal(t, TaskTypeJobBatch, batch.Type())

	var payload BatchPayload
	require.NoError(t, json.Unmarshal(batch.Payload(), &payload))
	require.Len(t, payload.Jobs, 2)
	assert.Equal(t, "a", payload.Jobs[0].JobID)
	assert.Equal(t, KindTranslation, payload.Jobs[1].Type)
}

func TestTimeoutForKind(t *testing.T) {
	m := newTestManager(t, newProcessorFixture(t), nil)
	assert.Equal(t, 300*time.Second, m.timeoutFor(KindStory))
	assert.Equal(t, 60*time.Second, m.timeoutFor(KindTranslation))
}

func TestHandleJobBatchProcessesEachJob(t *testing.T) {
	f := newProcessorFixture(t)
	m := newTestManager(t, f, nil)
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-1", KindTranslation, translation.Request{Word: "apple", TargetLanguage: "es"})
	newPendingRecord(t, f.store, "job-2", KindTranslation, translation.Request{Word: "pear", TargetLanguage: "es"})

	body, err := json.Marshal(BatchPayload{Jobs: []TaskPayload{{JobID: "job-1"}, {JobID: "job-2"}}})
	require.NoError(t, err)
	require.NoError(t, m.handleJobBatch(ctx, asynq.NewTask(TaskTypeJobBatch, body)))

	for _, id := range []string{"job-1", "job-2"} {
		got, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	}
}

func TestHandleJobCreatedRejectsMalformedPayload(t *testing.T) {
	m := newTestManager(t, newProcessorFixture(t), nil)
	err := m.handleJobCreated(context.Background(), asynq.NewTask(TaskTypeJobCreated, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleArchiveAssignments(t *testing.T) {
	archiver := &stubArchiver{}
	m := newTestManager(t, newProcessorFixture(t), archiver)

	require.NoError(t, m.handleArchiveAssignments(context.Background(), asynq.NewTask(TaskTypeArchiveAssignments, nil)))
	assert.Equal(t, 1, archiver.calls)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), archiver.before, time.Minute)
}
