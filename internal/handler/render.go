package handler

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/middleware"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.tmpl")
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
	"isoDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"derefInt": func(v *int) string {
		if v == nil {
			return ""
		}
		return strconv.Itoa(*v)
	},
	"num": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"score": func(v *float64) string {
		if v == nil {
			return "N/A"
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	},
	"lookup": func(m map[string]*float64, key string) *float64 {
		return m[key]
	},
	"resultStatus": func(s *models.ResultStatus) string {
		if s == nil {
			return string(models.ResultCompleted)
		}
		return string(*s)
	},
	"add": func(a, b int) int { return a + b },
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
	"validAnswers": func(b models.QuestionBody) []string {
		return b.ValidAnswers()
	},
}

type semesterLister interface {
	Semesters(ctx context.Context) ([]models.Semester, error)
}

// Page is the state every page template receives.
type Page struct {
	Title     string
	Nav       string
	User      string
	CSRFToken string
	Semester  *models.Semester
	Semesters []models.Semester
	Flashes   []session.Flash
	Error     string
	Data      interface{}
}

// pages renders templates and turns errors into flashes. It is embedded by every
// page handler.
type pages struct {
	semesters semesterLister
	logger    *zap.Logger
}

func newPages(semesters semesterLister, logger *zap.Logger) pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return pages{semesters: semesters, logger: logger}
}

// render shows name with data. pageErr, when set, is shown as an inline alert.
func (p pages) render(c *gin.Context, name, nav, title string, data interface{}, pageErr error) {
	page := Page{
		Title:     title,
		Nav:       nav,
		User:      session.FullName(c),
		CSRFToken: session.CSRFToken(c),
		Semester:  middleware.ActiveSemester(c),
		Data:      data,
	}
	if p.semesters != nil && page.Semester != nil {
		list, err := p.semesters.Semesters(c.Request.Context())
		if err != nil {
			p.logger.Warn("load semester picker", zap.Error(err))
		}
		page.Semesters = list
	}
	if pageErr != nil {
		p.log(c, pageErr)
		page.Error = appErrors.UserMessage(pageErr)
	}
	page.Flashes = session.Flashes(c)
	c.HTML(http.StatusOK, name, page)
}

// redirect queues a flash and sends the browser to target.
func (p pages) redirect(c *gin.Context, target, kind, message string) {
	session.AddFlash(c, kind, message)
	c.Redirect(http.StatusSeeOther, target)
}

// fail reports err as a flash on target. Internal details are logged only.
func (p pages) fail(c *gin.Context, err error, target string) {
	p.log(c, err)
	p.redirect(c, target, session.FlashError, appErrors.UserMessage(err))
}

func (p pages) log(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.String("code", appErr.Code),
		zap.Error(err),
	}
	if scope, ok := middleware.Scope(c); ok {
		fields = append(fields, zap.String("teacher_id", scope.TeacherID))
	}
	if appErr.Status >= http.StatusInternalServerError {
		p.logger.Error("request failed", fields...)
		return
	}
	p.logger.Debug("request rejected", fields...)
}

// scope returns the request scope; a missing scope is a wiring error.
func scope(c *gin.Context) models.TeacherScope {
	s, ok := middleware.Scope(c)
	if !ok {
		panic(fmt.Sprintf("handler: no teacher scope on %s", c.FullPath()))
	}
	return s
}
