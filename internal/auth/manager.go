// Package auth は認証・認可機能を提供します。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/wordnest/internal/learning"
)

const (
	SessionCookieName    = "wn_session"
	sessionKeyUser       = "auth_user"
	sessionKeyRole       = "auth_role"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
	loginWindow        = 15 * time.Minute
	lockDuration       = 10 * time.Minute
	maxLoginAttempts   = 5
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserKey / ContextRoleKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const (
	ContextUserKey = "auth.user"
	ContextRoleKey = "auth.role"
)

// UserStore はアカウントの保存先です。
type UserStore interface {
	CreateUser(ctx context.Context, u *learning.User) error
	GetUserByUsername(ctx context.Context, username string) (*learning.User, error)
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users    UserStore
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(users UserStore) *Manager {
	return &Manager{
		users:    users,
		attempts: make(map[string]*attemptState),
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required,oneof=student teacher"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register は /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username（英数字3文字以上）、password（8文字以上）、role（student / teacher）を JSON で送ってください",
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "パスワードの保存に失敗しました",
		})
		return
	}

	user := &learning.User{
		Username:     strings.ToLower(req.Username),
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if err := m.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, learning.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "USERNAME_TAKEN",
				"message": "このユーザー名は既に使われています",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ユーザーの作成に失敗しました",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を JSON で送ってください",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	user, err := m.users.GetUserByUsername(c.Request.Context(), strings.ToLower(req.Username))
	if err != nil && !errors.Is(err, learning.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ユーザー情報の取得に失敗しました",
		})
		return
	}
	if user == nil || !verifyPassword(user.PasswordHash, req.Password) {
		remaining := m.recordFailure(ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "ユーザー名またはパスワードが正しくありません",
			"remainingAttempts": remaining,
		})
		return
	}

	m.resetAttempts(ip)

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRF トークンの生成に失敗しました",
		})
		return
	}

	session := sessions.Default(c)
	now := time.Now()
	session.Set(sessionKeyUser, user.ID)
	session.Set(sessionKeyRole, user.Role)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)

	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	c.Header(csrfHeader, token)
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

// Logout は /auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequireLogin はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		user, ok := session.Get(sessionKeyUser).(string)
		if !ok || user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		now := time.Now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "SESSION_EXPIRED",
				"message": "セッションの有効期限が切れました",
			})
			return
		}

		if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "SESSION_IDLE_TIMEOUT",
				"message": "しばらく操作がなかったため再ログインしてください",
			})
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		_ = session.Save()
		role, _ := session.Get(sessionKeyRole).(string)
		c.Set(ContextUserKey, user)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

// RequireRole は指定の役割を持つユーザーだけを通すミドルウェアです。RequireLogin の後に置きます。
func (m *Manager) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Unauthorized",
			})
			return
		}
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

// UserID はログイン済みユーザーの ID を返します。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

// Role はログイン済みユーザーの役割を返します。
func Role(c *gin.Context) string {
	return c.GetString(ContextRoleKey)
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := time.Now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return time.Until(state.lockedUntil)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
