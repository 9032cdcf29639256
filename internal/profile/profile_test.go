package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/storage"
)

// 1x1 の透明 PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type fixture struct {
	store *learning.Store
	h     *Handler
}

func newFixture(t *testing.T, maxAvatar int64) *fixture {
	t.Helper()
	db, err := learning.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, learning.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := learning.NewStore(db)
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		store: store,
		h:     NewHandler(store, files, badges.NewService(store), maxAvatar, nil),
	}
}

func (f *fixture) router(userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(auth.ContextUserKey, userID)
		c.Next()
	})
	f.h.Register(api)
	return r
}

func multipartBody(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAvatarUploadAndDownload(t *testing.T) {
	f := newFixture(t, 1024)
	r := f.router("user-1")

	body, ct := multipartBody(t, tinyPNG)
	req := httptest.NewRequest(http.MethodPut, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "image/png")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile/avatar", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, tinyPNG, w.Body.Bytes())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hasAvatar":true`)
	assert.Contains(t, w.Body.String(), `"level":"A1"`)
}

func TestAvatarRejectsNonImage(t *testing.T) {
	f := newFixture(t, 1024)
	body, ct := multipartBody(t, []byte("hello, this is plain text"))
	req := httptest.NewRequest(http.MethodPut, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.router("user-1").ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvatarRejectsOversized(t *testing.T) {
	f := newFixture(t, 32)
	body, ct := multipartBody(t, tinyPNG)
	req := httptest.NewRequest(http.MethodPut, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.router("user-1").ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "LIMIT_EXCEEDED")
}

func TestProfileMissing(t *testing.T) {
	f := newFixture(t, 1024)
	r := f.router("nobody")

	for _, path := range []string{"/api/profile", "/api/profile/avatar"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func seedWords(t *testing.T, store *learning.Store, userID string, words ...string) []learning.VocabularyWord {
	t.Helper()
	ctx := context.Background()
	_, _, err := store.EnsureProfile(ctx, userID, "B1", 0)
	require.NoError(t, err)
	rows := make([]learning.VocabularyWord, len(words))
	for i, w := range words {
		rows[i] = learning.VocabularyWord{Word: w}
	}
	saved, err := store.SaveGeneratedStory(ctx, &learning.Story{UserID: userID, Title: "t", Content: "c"}, rows)
	require.NoError(t, err)
	return saved
}

func TestWordMasteryUpdate(t *testing.T) {
	f := newFixture(t, 1024)
	words := seedWords(t, f.store, "user-1", "quest", "harbor")
	r := f.router("user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/words/"+words[0].ID, strings.NewReader(`{"mastery":"known"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"mastery":"known"`)

	p, err := f.store.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.WordsMastered)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/words?mastery=known", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Words []learning.VocabularyWord `json:"words"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, "quest", listed.Words[0].Word)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/words/"+words[1].ID, strings.NewReader(`{"mastery":"expert"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/words?mastery=expert", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.router("intruder").ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/words/"+words[1].ID, strings.NewReader(`{"mastery":"known"}`)))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListBadges(t *testing.T) {
	f := newFixture(t, 1024)
	seedWords(t, f.store, "user-1", "quest")
	_, err := badges.NewService(f.store).Refresh(context.Background(), "user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.router("user-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile/badges", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Badges []struct {
			ID       string `json:"id"`
			Unlocked bool   `json:"unlocked"`
		} `json:"badges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Badges, len(badges.Defaults()))
	for _, b := range payload.Badges {
		assert.Equal(t, b.ID == "first-story", b.Unlocked, b.ID)
	}
}
