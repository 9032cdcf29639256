package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/story"
	"github.com/yourusername/wordnest/internal/translation"
)

const sseHeartbeat = 15 * time.Second

// Subscriber はジョブのイベント購読を提供します。
type Subscriber interface {
	Subscribe(ctx context.Context, jobID string) *redis.PubSub
}

// SubmitTranslationHandler は POST /api/jobs/translation のハンドラーを返します。
func SubmitTranslationHandler(sub *Submitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req translation.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Validation("word と targetLanguage を JSON で送ってください"))
			return
		}
		res, err := sub.SubmitTranslation(c.Request.Context(), auth.UserID(c), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusAccepted, res)
	}
}

// SubmitStoryHandler は POST /api/jobs/story のハンドラーを返します。
func SubmitStoryHandler(sub *Submitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req story.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Validation("level と mode を JSON で送ってください"))
			return
		}
		res, err := sub.SubmitStory(c.Request.Context(), auth.UserID(c), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusAccepted, res)
	}
}

// StatusHandler は GET /api/jobs/:id のハンドラーを返します。常にストアから読み直します。
func StatusHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := loadOwnedRecord(c, store)
		if !ok {
			return
		}

		payload := gin.H{
			"jobId":     record.ID,
			"type":      record.Type,
			"status":    record.Status,
			"startedAt": record.StartedAt,
			"updatedAt": record.UpdatedAt,
		}
		if len(record.Result) > 0 {
			payload["result"] = record.Result
		}
		if record.Error != nil {
			payload["error"] = *record.Error
		}
		if record.CompletedAt != nil {
			payload["completedAt"] = record.CompletedAt
		}
		c.JSON(http.StatusOK, payload)
	}
}

// EventsHandler は GET /api/jobs/:id/events のハンドラーを返します。
// 接続直後に pending の暫定状態を送り、終了状態になるか切断されるまでイベントを中継します。
func EventsHandler(store *Store, subscriber Subscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := loadOwnedRecord(c, store)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		// 取りこぼしを防ぐため、状態を読み直す前に購読を確立する
		pubsub := subscriber.Subscribe(ctx, record.ID)
		defer pubsub.Close()
		if _, err := pubsub.Receive(ctx); err != nil {
			apperr.Respond(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-store")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		send := func(ev Event) {
			c.SSEvent("job", ev)
			c.Writer.Flush()
		}
		send(Placeholder(record.ID))

		latest, err := store.Get(ctx, record.ID)
		if err != nil || latest == nil {
			return
		}
		if latest.Status != StatusPending {
			send(EventFromRecord(latest))
		}
		if latest.Status.Terminal() {
			return
		}

		messages := pubsub.Channel()
		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				c.SSEvent("ping", "")
				c.Writer.Flush()
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				send(ev)
				if ev.Status.Terminal() {
					return
				}
			}
		}
	}
}

func loadOwnedRecord(c *gin.Context, store *Store) (*Record, bool) {
	jobID := c.Param("id")
	if strings.TrimSpace(jobID) == "" {
		apperr.Respond(c, apperr.Validation("jobId を指定してください。"))
		return nil, false
	}

	record, err := store.Get(c.Request.Context(), jobID)
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if record == nil {
		apperr.Respond(c, apperr.NotFound("Job"))
		return nil, false
	}
	if record.UserID != auth.UserID(c) {
		apperr.Respond(c, apperr.Unauthorized())
		return nil, false
	}
	return record, true
}
