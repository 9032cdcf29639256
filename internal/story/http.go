package story

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/learning"
)

// 一覧の件数
const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Reader は保存済みストーリーの参照です。
type Reader interface {
	GetStory(ctx context.Context, id string) (*learning.Story, error)
	ListStories(ctx context.Context, userID string, limit int) ([]learning.Story, error)
}

// Handler はストーリー関連の HTTP ハンドラーです。
type Handler struct {
	svc     *Service
	stories Reader
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service, stories Reader) *Handler {
	return &Handler{svc: svc, stories: stories}
}

// Register はルートを登録します。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/stories", h.create)
	rg.GET("/stories", h.list)
	rg.GET("/stories/:id", h.get)
}

func (h *Handler) create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("リクエストボディを JSON で送ってください"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		apperr.Respond(c, err)
		return
	}

	res, err := h.svc.Generate(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	payload := gin.H{
		"story":    res.Story,
		"newWords": res.NewWords,
	}
	if res.GenerationErr != nil {
		payload["error"] = res.GenerationErr.Error()
	}
	c.JSON(http.StatusCreated, payload)
}

func (h *Handler) list(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil {
		apperr.Respond(c, apperr.Validation("limit must be an integer"))
		return
	}
	limit = min(max(limit, 1), maxListLimit)
	rows, err := h.stories.ListStories(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if rows == nil {
		rows = []learning.Story{}
	}
	c.JSON(http.StatusOK, gin.H{"stories": rows})
}

func (h *Handler) get(c *gin.Context) {
	st, err := h.stories.GetStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			apperr.Respond(c, apperr.NotFound("Story"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	if st.UserID != auth.UserID(c) {
		apperr.Respond(c, apperr.Unauthorized())
		return
	}
	c.JSON(http.StatusOK, st)
}
