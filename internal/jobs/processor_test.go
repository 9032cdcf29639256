package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/wordnest/internal/ai"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/story"
	"github.com/yourusername/wordnest/internal/translation"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

type stubTranslator struct {
	calls int
	err   error
}

func (s *stubTranslator) TranslateOrFallback(_ context.Context, req translation.Request) (translation.Result, error) {
	s.calls++
	if s.err != nil {
		return translation.Fallback(req), s.err
	}
	return translation.Result{
		Word:           req.Word,
		Translation:    "manzana",
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	}, nil
}

type stubStories struct {
	calls  int
	err    error
	genErr error
}

func (s *stubStories) Generate(_ context.Context, userID string, req story.Request) (*story.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &story.Result{
		Story: learning.Story{ID: "story-1", UserID: userID, Title: "T", Content: "C", Level: req.Level, Mode: req.Mode},
		NewWords: []learning.VocabularyWord{
			{ID: "w-1", UserID: userID, Word: "quest", Mastery: learning.MasteryUnknown},
		},
		GenerationErr: s.genErr,
	}, nil
}

type processorFixture struct {
	store      *Store
	translator *stubTranslator
	stories    *stubStories
	publisher  *recordingPublisher
	processor  *Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	f := &processorFixture{
		store:      NewStore(rdb, 0),
		translator: &stubTranslator{},
		stories:    &stubStories{},
		publisher:  &recordingPublisher{},
	}
	f.processor = NewProcessor(f.store, f.stories, f.translator, f.publisher, nil)
	return f
}

func TestProcessTranslationCompletes(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-a", KindTranslation, translation.Request{Word: "apple", TargetLanguage: "es"})

	require.NoError(t, f.processor.Process(ctx, "job-a"))

	got, err := f.store.Get(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Nil(t, got.Error)
	require.NotNil(t, got.CompletedAt)

	var res translation.Result
	require.NoError(t, json.Unmarshal(got.Result, &res))
	assert.Equal(t, "manzana", res.Translation)
	assert.Equal(t, "en", res.SourceLanguage)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "job-a", events[0].JobID)
	assert.Equal(t, StatusCompleted, events[0].Status)
	assert.JSONEq(t, string(got.Result), string(events[0].Translation))
}

func TestProcessTranslationFallbackIsCompleted(t *testing.T) {
	f := newProcessorFixture(t)
	f.translator.err = errors.New("upstream returned 503")
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-b", KindTranslation, translation.Request{Word: "apple", TargetLanguage: "es"})

	require.NoError(t, f.processor.Process(ctx, "job-b"))

	got, err := f.store.Get(ctx, "job-b")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "upstream returned 503", *got.Error)

	var res translation.Result
	require.NoError(t, json.Unmarshal(got.Result, &res))
	assert.Equal(t, `[Translation for "apple"]`, res.Translation)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "upstream returned 503", events[0].Error)
}

func TestSubmittedTranslationCompletesWhenAIUnavailable(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, 0)
	publisher := &recordingPublisher{}
	processor := NewProcessor(store, &stubStories{}, translation.NewService(ai.Disabled{}), publisher, nil)
	sub := NewSubmitter(store, &stubNotifier{}, nil)
	ctx := context.Background()

	submitted, err := sub.SubmitTranslation(ctx, "user-1", translation.Request{Word: "run", TargetLanguage: "hu"})
	require.NoError(t, err)
	require.NoError(t, processor.Process(ctx, submitted.JobID))

	got, err := store.Get(ctx, submitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, ai.ErrUnavailable.Error())

	var res translation.Result
	require.NoError(t, json.Unmarshal(got.Result, &res))
	assert.Equal(t, `[Translation for "run"]`, res.Translation)
	assert.Equal(t, "run", res.Word)
	assert.Equal(t, "en", res.SourceLanguage)
	assert.Equal(t, "hu", res.TargetLanguage)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, StatusCompleted, events[0].Status)
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-c", KindStory, story.Request{Level: "B1", Mode: story.ModePersonalized})

	require.NoError(t, f.processor.Process(ctx, "job-c"))
	require.NoError(t, f.processor.Process(ctx, "job-c"))

	assert.Equal(t, 1, f.stories.calls)
	assert.Len(t, f.publisher.Events(), 1)
}

func TestProcessSkipsProcessingRecord(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-d", KindTranslation, translation.Request{Word: "apple", TargetLanguage: "es"})
	_, err := f.store.MarkProcessing(ctx, "job-d")
	require.NoError(t, err)

	require.NoError(t, f.processor.Process(ctx, "job-d"))
	assert.Zero(t, f.translator.calls)
	assert.Empty(t, f.publisher.Events())

	got, err := f.store.Get(ctx, "job-d")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestProcessStoryCompletes(t *testing.T) {
	f := newProcessorFixture(t)
	f.stories.genErr = errors.New("model unavailable")
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-e", KindStory, story.Request{Level: "B1", Mode: story.ModeTeacher})

	require.NoError(t, f.processor.Process(ctx, "job-e"))

	got, err := f.store.Get(ctx, "job-e")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Error)

	var res StoryResult
	require.NoError(t, json.Unmarshal(got.Result, &res))
	assert.Equal(t, "story-1", res.Story.ID)
	require.Len(t, res.NewWords, 1)
	assert.Equal(t, "quest", res.NewWords[0].Word)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Story), `"id":"story-1"`)
	assert.Contains(t, string(events[0].NewWords), `"quest"`)
}

func TestProcessStoryPersistenceFailureMarksFailed(t *testing.T) {
	f := newProcessorFixture(t)
	f.stories.err = errors.New("database is locked")
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-f", KindStory, story.Request{Level: "B1", Mode: story.ModeTeacher})

	require.NoError(t, f.processor.Process(ctx, "job-f"))

	got, err := f.store.Get(ctx, "job-f")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "database is locked", *got.Error)
	assert.Empty(t, got.Result)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, StatusFailed, events[0].Status)
	assert.Equal(t, "database is locked", events[0].Error)
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	newPendingRecord(t, f.store, "job-g1", KindTranslation, translation.Request{Word: "apple", TargetLanguage: "es"})
	require.NoError(t, f.store.Create(ctx, &Record{ID: "job-g2", UserID: "user-1", Type: KindStory, Status: StatusPending, Input: json.RawMessage(`"not an object"`)}))
	newPendingRecord(t, f.store, "job-g3", KindTranslation, translation.Request{Word: "pear", TargetLanguage: "fr"})

	require.NoError(t, f.processor.ProcessBatch(ctx, []string{"job-g1", "job-g2", "missing", "job-g3"}))

	for id, want := range map[string]Status{"job-g1": StatusCompleted, "job-g2": StatusFailed, "job-g3": StatusCompleted} {
		got, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}
	assert.Len(t, f.publisher.Events(), 3)
}

func TestEventFromRecordPendingHasNoPayload(t *testing.T) {
	ev := EventFromRecord(&Record{ID: "j", Type: KindStory, Status: StatusPending})
	assert.Equal(t, Placeholder("j"), ev)
}
