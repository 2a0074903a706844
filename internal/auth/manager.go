// Package auth は単一運用ユーザー向けのセッション認証と保護ミドルウェアを提供します。
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/sanitisium/internal/config"
)

const (
	SessionCookieName = "sx_session"
	csrfHeader        = "X-CSRF-Token"

	keyUser    = "user"
	keyIssued  = "issued_at"
	keyTouched = "touched_at"
	keyCSRF    = "csrf"
)

const (
	sessionLifetime = 8 * time.Hour
	sessionIdle     = 20 * time.Minute
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(sessionLifetime.Seconds())
}

// loginLimiter は同一IPからのログイン失敗を数え、上限に達したIPを
// 一定時間拒否します。成功したIPの記録は消します。
type loginLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	lockFor time.Duration
	limit   int
	failed  map[string]*failureWindow
}

type failureWindow struct {
	since       time.Time
	count       int
	blockedTill time.Time
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		window:  10 * time.Minute,
		lockFor: 15 * time.Minute,
		limit:   5,
		failed:  make(map[string]*failureWindow),
	}
}

// blockedFor は残りロック時間を返します。ロックされていなければ0です。
func (l *loginLimiter) blockedFor(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.failed[ip]
	if !ok {
		return 0
	}
	remaining := time.Until(w.blockedTill)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// noteFailure は失敗を1回分記録し、残り試行回数を返します。
func (l *loginLimiter) noteFailure(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.failed[ip]
	if !ok || now.Sub(w.since) > l.window {
		w = &failureWindow{since: now}
		l.failed[ip] = w
	}
	w.count++
	if w.count >= l.limit {
		w.blockedTill = now.Add(l.lockFor)
	}
	if remaining := l.limit - w.count; remaining > 0 {
		return remaining
	}
	return 0
}

func (l *loginLimiter) clear(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failed, ip)
}

// Manager はログイン処理とセッション検証をまとめた構造体です。
type Manager struct {
	cfg     *config.Config
	limiter *loginLimiter
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		limiter: newLoginLimiter(),
	}
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/auth/login のハンドラーです。
// 成功時はセッションを発行し、CSRFトークンをヘッダーで返します。
func (m *Manager) Login(c *gin.Context) {
	if m.cfg.AppUsername == "" || m.cfg.AppPasswordHash == "" || m.cfg.SessionSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_MISCONFIGURATION",
			"message": "認証情報が設定されていないためログインできません。",
		})
		return
	}

	var creds credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を送信してください。",
		})
		return
	}

	ip := c.ClientIP()
	if wait := m.limiter.blockedFor(ip); wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "ログイン試行が多すぎます。しばらく待ってから再度お試しください。",
		})
		return
	}

	if !m.authenticate(creds) {
		remaining := m.limiter.noteFailure(ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "認証に失敗しました。",
			"remainingAttempts": remaining,
		})
		return
	}
	m.limiter.clear(ip)

	token, err := newCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRFトークンを生成できませんでした。",
		})
		return
	}

	session := sessions.Default(c)
	now := time.Now().Unix()
	session.Set(keyUser, m.cfg.AppUsername)
	session.Set(keyIssued, now)
	session.Set(keyTouched, now)
	session.Set(keyCSRF, token)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションを保存できませんでした。",
		})
		return
	}

	c.Header(csrfHeader, token)
	c.Status(http.StatusNoContent)
}

// Logout は POST /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションを破棄できませんでした。",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequireLogin は有効なセッションを要求するミドルウェアを返します。
// 検証に通ったリクエストは最終アクセス時刻を更新します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		user, code, message := checkSession(session)
		if user == "" {
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    code,
				"message": message,
			})
			return
		}

		session.Set(keyTouched, time.Now().Unix())
		_ = session.Save()
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// VerifyCSRF は状態を変えるメソッドに X-CSRF-Token ヘッダーを要求する
// ミドルウェアです。トークンはセッション内の値との二重送信で照合します。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		expected, _ := sessions.Default(c).Get(keyCSRF).(string)
		received := c.GetHeader(csrfHeader)
		if expected == "" || received == "" ||
			subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_REJECTED",
				"message": "CSRFトークンが無いか一致しません。",
			})
			return
		}
		c.Next()
	}
}

func (m *Manager) authenticate(creds credentials) bool {
	if creds.Username != m.cfg.AppUsername {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.cfg.AppPasswordHash), []byte(creds.Password)) == nil
}

// checkSession はセッションを検証し、通ればユーザー名を、
// 弾く場合は空のユーザー名と拒否理由を返します。
func checkSession(session sessions.Session) (user, code, message string) {
	u, _ := session.Get(keyUser).(string)
	if u == "" {
		return "", "UNAUTHORIZED", "ログインしてから操作してください。"
	}

	now := time.Now()
	issued := asTime(session.Get(keyIssued))
	if issued.IsZero() || now.Sub(issued) > sessionLifetime {
		return "", "SESSION_EXPIRED", "セッションが失効しました。再ログインしてください。"
	}
	touched := asTime(session.Get(keyTouched))
	if touched.IsZero() || now.Sub(touched) > sessionIdle {
		return "", "SESSION_IDLE_TIMEOUT", "操作のない時間が続いたため再ログインが必要です。"
	}
	return u, "", ""
}

func newCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// asTime はセッションに保存したUnix秒を復元します。クッキーストアは
// gob経由なのでint64のまま返りますが、他ストアの数値型にも備えます。
func asTime(v interface{}) time.Time {
	switch n := v.(type) {
	case int64:
		return time.Unix(n, 0)
	case int:
		return time.Unix(int64(n), 0)
	case float64:
		return time.Unix(int64(n), 0)
	default:
		return time.Time{}
	}
}
