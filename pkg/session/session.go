package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-assessments/pkg/config"
)

const (
	keyUserID   = "user_id"
	keyRole     = "role"
	keyFullName = "full_name"
	keyCSRF     = "csrf_token"
	keySemester = "semester_id"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is one message queued for the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Middleware installs the cookie-backed session store.
func Middleware(cfg config.SessionConfig) gin.HandlerFunc {
	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	name := cfg.Name
	if name == "" {
		name = "teacher_session"
	}
	return sessions.Sessions(name, store)
}

// Login resets the session for a freshly authenticated user and rotates the CSRF token.
func Login(c *gin.Context, userID, role, fullName string) error {
	s := sessions.Default(c)
	s.Clear()
	s.Set(keyUserID, userID)
	s.Set(keyRole, role)
	s.Set(keyFullName, fullName)
	s.Set(keyCSRF, newToken())
	return s.Save()
}

// Logout drops every value held by the session.
func Logout(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// Reset signs the user out but keeps the cookie alive so message can be shown
// on the login page.
func Reset(c *gin.Context, kind, message string) error {
	s := sessions.Default(c)
	s.Clear()
	s.Set(keyCSRF, newToken())
	if message != "" {
		s.AddFlash(message, kind)
	}
	return s.Save()
}

// UserID returns the authenticated user id or "".
func UserID(c *gin.Context) string { return getString(c, keyUserID) }

// Role returns the authenticated user's role or "".
func Role(c *gin.Context) string { return getString(c, keyRole) }

// FullName returns the display name stored at login.
func FullName(c *gin.Context) string { return getString(c, keyFullName) }

// CSRFToken returns the session token, issuing one on first use.
func CSRFToken(c *gin.Context) string {
	if token := getString(c, keyCSRF); token != "" {
		return token
	}
	s := sessions.Default(c)
	token := newToken()
	s.Set(keyCSRF, token)
	_ = s.Save()
	return token
}

// ValidCSRF compares the submitted token with the session token in constant time.
func ValidCSRF(c *gin.Context, submitted string) bool {
	expected := getString(c, keyCSRF)
	if expected == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}

// SelectedSemester returns the semester chosen in the picker, if any.
func SelectedSemester(c *gin.Context) string { return getString(c, keySemester) }

// SetSelectedSemester remembers the picker choice for later requests.
func SetSelectedSemester(c *gin.Context, semesterID string) error {
	s := sessions.Default(c)
	s.Set(keySemester, semesterID)
	return s.Save()
}

// AddFlash queues a message shown once on the next page render.
func AddFlash(c *gin.Context, kind, message string) {
	if message == "" {
		return
	}
	s := sessions.Default(c)
	s.AddFlash(message, kind)
	_ = s.Save()
}

// Flashes pops every queued message, errors first.
func Flashes(c *gin.Context) []Flash {
	s := sessions.Default(c)
	var out []Flash
	for _, kind := range []string{FlashError, FlashSuccess} {
		for _, raw := range s.Flashes(kind) {
			if msg, ok := raw.(string); ok {
				out = append(out, Flash{Kind: kind, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		_ = s.Save()
	}
	return out
}

func getString(c *gin.Context, key string) string {
	v, _ := sessions.Default(c).Get(key).(string)
	return v
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
