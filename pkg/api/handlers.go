package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/auth"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/integration"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/report"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/settings"
)

// AttackMethod is reported by the demo attack endpoint
const AttackMethod = "Default Password Attack"

// AttackRequest is the body of the demo attack endpoint
type AttackRequest struct {
	DeviceIP string `json:"deviceIP" binding:"required"`
}

// AttackResponse is returned by the demo attack endpoint
type AttackResponse struct {
	Success bool   `json:"success"`
	Target  string `json:"target"`
	Method  string `json:"method"`
	Details string `json:"details"`
}

// WhitelistRequest is the body of the whitelist endpoint
type WhitelistRequest struct {
	Entry string `json:"entry" binding:"required"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, scan.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, scan.ErrDeviceNotFound),
		errors.Is(err, report.ErrReportNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, settings.ErrNotWhitelisted):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrInvalidTarget),
		errors.Is(err, history.ErrUnknownField),
		errors.Is(err, history.ErrUnknownFilter),
		errors.Is(err, history.ErrInvalidDate),
		errors.Is(err, report.ErrUnsupportedFormat),
		errors.Is(err, settings.ErrInvalidSettings),
		errors.Is(err, auth.ErrMissingField),
		errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleDemoScan(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": integration.ScanAPIDevices()})
}

func (s *Server) handleDemoAttack(c *gin.Context) {
	var req AttackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Attack failed"})
		return
	}

	c.JSON(http.StatusOK, AttackResponse{
		Success: true,
		Target:  req.DeviceIP,
		Method:  AttackMethod,
		Details: "Successfully accessed device",
	})
}

func (s *Server) handleStartScan(c *gin.Context) {
	if err := s.store.StartBackground(s.ctx); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scan_started"})
}

func (s *Server) handleCancelScan(c *gin.Context) {
	s.store.CancelScan()
	c.JSON(http.StatusOK, gin.H{"status": "scan_cancelled"})
}

func (s *Server) handleScanStatus(c *gin.Context) {
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"scanning":  snap.Scanning,
		"progress":  snap.Stats.ScanProgress,
		"scanStats": snap.Stats,
	})
}

func (s *Server) handleGetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot().Devices)
}

func (s *Server) handleGetDevice(c *gin.Context) {
	d, err := s.store.Device(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleSelectDevice(c *gin.Context) {
	d, err := s.store.SelectDevice(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleClearSelection(c *gin.Context) {
	s.store.ClearSelection()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAttackDevice(c *gin.Context) {
	d, err := s.store.Device(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	msg, err := s.store.AttackDevice(c.Request.Context(), d.IP)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"target":  d.IP,
		"message": msg,
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"scanStats": snap.Stats,
		"riskLevel": snap.RiskLevel,
	})
}

// historyQuery reads the history listing parameters of a request
func historyQuery(c *gin.Context) (history.Query, error) {
	var q history.Query

	filter, err := history.ParseFilter(c.Query("filter"))
	if err != nil {
		return q, err
	}
	q.Filter = filter
	q.Date = c.Query("date")

	if field := c.Query("sort"); field != "" {
		f, err := history.ParseField(field)
		if err != nil {
			return q, err
		}
		dir, err := history.ParseDirection(c.DefaultQuery("dir", string(history.DirAsc)))
		if err != nil {
			return q, err
		}
		q.Sort = history.SortState{Field: f, Dir: dir}
	}

	return q, nil
}

func (s *Server) handleGetHistory(c *gin.Context) {
	q, err := historyQuery(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	records, err := s.history.List(q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"sort":    q.Sort,
	})
}

func (s *Server) handleGetReport(c *gin.Context) {
	r, err := s.reports.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleExportReport(c *gin.Context) {
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, err)
		return
	}

	r, err := s.reports.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, r, format); err != nil {
		s.fail(c, err)
		return
	}

	// Set headers for file download
	c.Header("Content-Disposition", "attachment; filename="+format.Filename(r))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Get())
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var req settings.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.settings.Save(req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleAddWhitelist(c *gin.Context) {
	var req WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := s.settings.AddWhitelist(req.Entry)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"whitelist": list})
}

func (s *Server) handleRemoveWhitelist(c *gin.Context) {
	list, err := s.settings.RemoveWhitelist(c.Param("entry"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"whitelist": list})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
