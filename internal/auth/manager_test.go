package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/wordnest/internal/learning"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*learning.User
}

func (m *memoryUsers) CreateUser(_ context.Context, u *learning.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return learning.ErrDuplicate
	}
	u.ID = uuid.NewString()
	m.users[u.Username] = u
	return nil
}

func (m *memoryUsers) GetUserByUsername(_ context.Context, username string) (*learning.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, learning.ErrNotFound
	}
	return u, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewManager(&memoryUsers{users: map[string]*learning.User{}})
	r := gin.New()
	r.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	r.POST("/auth/register", m.Register)
	r.POST("/auth/login", m.Login)

	api := r.Group("/api", m.RequireLogin(), m.VerifyCSRF())
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "role": Role(c)})
	})
	api.POST("/echo", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.POST("/teacher-only", m.RequireRole(learning.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doJSON(r http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, username, password string) http.Header {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/auth/login",
		`{"username":"`+username+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	h := http.Header{}
	for _, c := range w.Result().Cookies() {
		h.Add("Cookie", c.Name+"="+c.Value)
	}
	h.Set(csrfHeader, w.Header().Get(csrfHeader))
	return h
}

func TestRegisterAndLogin(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"Alice","password":"correct-horse","role":"student"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	w = doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"alice","password":"another-pass","role":"student"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	h := login(t, r, "alice", "correct-horse")
	w = doJSON(r, http.MethodGet, "/api/me", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"student"`)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"bob","password":"short","role":"student"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"bob","password":"long-enough","role":"admin"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireLoginWithoutSession(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyCSRF(t *testing.T) {
	r := newTestRouter(t)
	doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"carol","password":"password123","role":"student"}`, nil)
	h := login(t, r, "carol", "password123")

	w := doJSON(r, http.MethodPost, "/api/echo", "{}", h)
	assert.Equal(t, http.StatusNoContent, w.Code)

	bad := h.Clone()
	bad.Set(csrfHeader, "forged")
	w = doJSON(r, http.MethodPost, "/api/echo", "{}", bad)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CSRF_INVALID")
}

func TestRequireRole(t *testing.T) {
	r := newTestRouter(t)
	doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"dave","password":"password123","role":"student"}`, nil)
	doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"erin","password":"password123","role":"teacher"}`, nil)

	w := doJSON(r, http.MethodPost, "/api/teacher-only", "{}", login(t, r, "dave", "password123"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Unauthorized")

	w = doJSON(r, http.MethodPost, "/api/teacher-only", "{}", login(t, r, "erin", "password123"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLoginLockout(t *testing.T) {
	r := newTestRouter(t)
	doJSON(r, http.MethodPost, "/auth/register",
		`{"username":"frank","password":"password123","role":"student"}`, nil)

	for i := 0; i < maxLoginAttempts; i++ {
		w := doJSON(r, http.MethodPost, "/auth/login", `{"username":"frank","password":"wrong"}`, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := doJSON(r, http.MethodPost, "/auth/login", `{"username":"frank","password":"password123"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
