package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/settings"
)

//go:embed templates/*.html
var templatesFS embed.FS

// defaultReportID is shown when the report page is opened without an id
const defaultReportID = "SC-001"

var templateFuncs = template.FuncMap{
	"riskClass": func(level any) string {
		return "risk-" + strings.ToLower(strings.Fields(fmt.Sprint(level) + " unknown")[0])
	},
	"riskLabel": func(r models.Risk) string { return r.Label() },
	"severity":  func(s models.Severity) string { return s.Label() },
	"historyDays": func() []int {
		return settings.HistoryDays
	},
}

func (s *Server) setupPages() {
	tmpl := template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html"))
	s.router.SetHTMLTemplate(tmpl)

	s.router.GET("/", s.handleIndex)
	s.router.GET("/history", s.handleHistoryPage)
	s.router.GET("/report", s.handleReportPage)
	s.router.GET("/settings", s.handleSettingsPage)
	s.router.GET("/login", s.handleLoginPage)
	s.router.GET("/register", s.handleRegisterPage)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":    "IoT Security Scanner",
		"snapshot": s.store.Snapshot(),
		"realtime": s.config.EnableRealTime,
	})
}

func (s *Server) handleHistoryPage(c *gin.Context) {
	q, err := historyQuery(c)
	if err != nil {
		q = history.Query{Filter: history.FilterAll}
	}

	// clicking a header toggles its sort state
	if field, err := history.ParseField(c.Query("toggle")); err == nil {
		q.Sort = q.Sort.Toggle(field)
	}

	records, err := s.history.List(q)
	if err != nil {
		records = nil
	}

	c.HTML(http.StatusOK, "history.html", gin.H{
		"title":   "Scan History",
		"records": records,
		"query":   q,
	})
}

func (s *Server) handleReportPage(c *gin.Context) {
	id := c.DefaultQuery("id", defaultReportID)

	r, err := s.reports.Get(id)
	if err != nil {
		c.HTML(http.StatusNotFound, "report.html", gin.H{
			"title": "Report Not Found",
			"error": err.Error(),
		})
		return
	}

	c.HTML(http.StatusOK, "report.html", gin.H{
		"title":  "Scan Report " + r.ID,
		"report": r,
	})
}

func (s *Server) handleSettingsPage(c *gin.Context) {
	c.HTML(http.StatusOK, "settings.html", gin.H{
		"title":    "Settings",
		"settings": s.settings.Get(),
	})
}

func (s *Server) handleLoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"title": "Sign In",
	})
}

func (s *Server) handleRegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{
		"title": "Create Account",
	})
}
