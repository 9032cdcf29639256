// Package profile は学習者のプロフィール・アバター・語彙・バッジの API を提供します。
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/storage"
)

// DefaultLevel はアバター登録などでプロフィールを自動作成するときのレベルです。
const DefaultLevel = "A1"

const avatarField = "avatar"

var allowedAvatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Repository はプロフィール API が使う永続化操作です。
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*learning.Profile, error)
	EnsureProfile(ctx context.Context, userID, level string, age int) (*learning.Profile, bool, error)
	SetAvatar(ctx context.Context, userID, key, contentType string) error
	ListWords(ctx context.Context, userID, mastery string) ([]learning.VocabularyWord, error)
	GetWord(ctx context.Context, id string) (*learning.VocabularyWord, error)
	UpdateWordMastery(ctx context.Context, id, mastery string) (*learning.VocabularyWord, error)
	ListBadges(ctx context.Context, userID string) ([]learning.UserBadge, error)
}

// BadgeService はバッジ定義と再判定を提供します。
type BadgeService interface {
	Definitions() []badges.Definition
	Refresh(ctx context.Context, userID string) ([]badges.Definition, error)
}

// Handler はプロフィール関連の HTTP ハンドラーです。
type Handler struct {
	repo           Repository
	store          storage.Storage
	badges         BadgeService
	maxAvatarBytes int64
	logger         *zap.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(repo Repository, store storage.Storage, badgeSvc BadgeService, maxAvatarBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:           repo,
		store:          store,
		badges:         badgeSvc,
		maxAvatarBytes: maxAvatarBytes,
		logger:         logger.Named("profile"),
	}
}

// Register はルートを登録します。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/profile", h.getProfile)
	rg.PUT("/profile/avatar", h.putAvatar)
	rg.GET("/profile/avatar", h.getAvatar)
	rg.GET("/profile/badges", h.listBadges)
	rg.GET("/words", h.listWords)
	rg.PATCH("/words/:id", h.updateWord)
}

func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.repo.GetProfile(c.Request.Context(), auth.UserID(c))
	if err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			apperr.Respond(c, apperr.NotFound("Profile"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":   p,
		"hasAvatar": p.AvatarKey != "",
	})
}

func avatarKey(userID string) string {
	return "avatars/" + userID
}

func (h *Handler) putAvatar(c *gin.Context) {
	// multipart のヘッダー分を見込んで本文全体にも上限をかける
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAvatarBytes+64*1024)

	fh, err := c.FormFile(avatarField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apperr.Respond(c, apperr.New(apperr.CodeLimitExceeded, fmt.Sprintf("avatar must be at most %d bytes", h.maxAvatarBytes), nil))
			return
		}
		apperr.Respond(c, apperr.Validation("multipart/form-data の avatar フィールドで画像を送ってください"))
		return
	}
	if fh.Size > h.maxAvatarBytes {
		apperr.Respond(c, apperr.New(apperr.CodeLimitExceeded, fmt.Sprintf("avatar must be at most %d bytes", h.maxAvatarBytes), nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	contentType := mtype.String()
	if !allowedAvatarTypes[contentType] {
		apperr.Respond(c, apperr.Validation("avatar must be a PNG, JPEG or WebP image"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		apperr.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := auth.UserID(c)
	if _, _, err := h.repo.EnsureProfile(ctx, userID, DefaultLevel, 0); err != nil {
		apperr.Respond(c, err)
		return
	}
	key := avatarKey(userID)
	if err := h.store.Put(ctx, key, file, fh.Size, contentType); err != nil {
		apperr.Respond(c, err)
		return
	}
	if err := h.repo.SetAvatar(ctx, userID, key, contentType); err != nil {
		apperr.Respond(c, err)
		return
	}

	h.logger.Info("Avatar updated", zap.String("user_id", userID), zap.String("content_type", contentType), zap.Int64("size", fh.Size))
	c.JSON(http.StatusOK, gin.H{
		"contentType": contentType,
		"size":        fh.Size,
	})
}

func (h *Handler) getAvatar(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.repo.GetProfile(ctx, auth.UserID(c))
	if err != nil && !errors.Is(err, learning.ErrNotFound) {
		apperr.Respond(c, err)
		return
	}
	if p == nil || p.AvatarKey == "" {
		apperr.Respond(c, apperr.NotFound("Avatar"))
		return
	}

	rc, size, err := h.store.Get(ctx, p.AvatarKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apperr.Respond(c, apperr.NotFound("Avatar"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, size, p.AvatarContentType, rc, nil)
}

type badgeView struct {
	badges.Definition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

func (h *Handler) listBadges(c *gin.Context) {
	rows, err := h.repo.ListBadges(c.Request.Context(), auth.UserID(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	unlocked := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		unlocked[r.BadgeID] = r.UnlockedAt
	}

	defs := h.badges.Definitions()
	views := make([]badgeView, 0, len(defs))
	for _, d := range defs {
		v := badgeView{Definition: d}
		if at, ok := unlocked[d.ID]; ok {
			at := at
			v.Unlocked = true
			v.UnlockedAt = &at
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"badges": views})
}

func (h *Handler) listWords(c *gin.Context) {
	mastery := c.Query("mastery")
	if mastery != "" && !learning.ValidMastery(mastery) {
		apperr.Respond(c, apperr.Validation("mastery must be one of: known, learning, unknown"))
		return
	}
	rows, err := h.repo.ListWords(c.Request.Context(), auth.UserID(c), mastery)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if rows == nil {
		rows = []learning.VocabularyWord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"words": rows,
		"count": len(rows),
	})
}

type updateWordRequest struct {
	Mastery string `json:"mastery" validate:"required,oneof=known learning unknown"`
}

func (h *Handler) updateWord(c *gin.Context) {
	var req updateWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("mastery を JSON で送ってください"))
		return
	}
	if err := apperr.Validate(req); err != nil {
		apperr.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := auth.UserID(c)
	word, err := h.repo.GetWord(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			apperr.Respond(c, apperr.NotFound("Word"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	if word.UserID != userID {
		apperr.Respond(c, apperr.Unauthorized())
		return
	}

	updated, err := h.repo.UpdateWordMastery(ctx, word.ID, req.Mastery)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if _, err := h.badges.Refresh(ctx, userID); err != nil {
		h.logger.Warn("Failed to refresh badges", zap.String("user_id", userID), zap.Error(err))
	}
	c.JSON(http.StatusOK, updated)
}
