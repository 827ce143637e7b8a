// Package handler exposes the attendance core over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/syncer"
)

// Pending lists the offline queue.
type Pending interface {
	Pending(ctx context.Context) []model.Payload
}

// Handler serves the teacher-facing API.
type Handler struct {
	Registry *attendance.Registry
	Roster   roster.Repository
	Queue    Pending

	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
}

// Routes mounts the API on r. Extra middleware runs after authentication.
func (h *Handler) Routes(r gin.IRouter, mw ...gin.HandlerFunc) {
	r.POST("/v1/login", h.login)

	g := r.Group("/v1", auth.TeacherAuth(h.SigningKey, h.Issuer))
	g.Use(mw...)
	g.GET("/attendance", h.open)
	g.PUT("/attendance/marks/:studentID", h.setMark)
	g.DELETE("/attendance/marks/:studentID", h.clearMark)
	g.POST("/attendance/submit", h.submit)
	g.POST("/sync/flush", h.flush)
	g.GET("/sync/queue", h.queue)
}

// TeacherKey charges rate limits to the authenticated teacher.
func TeacherKey(c *gin.Context) string {
	if t, ok := auth.TeacherFrom(c); ok {
		return "teacher:" + t.Username
	}
	return ""
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	teacher, err := h.Roster.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Username or Password"})
		return
	}
	tok, err := auth.Issue(teacher, h.Issuer, h.SigningKey, h.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
		"teacher":      teacher,
	})
}

func (h *Handler) open(c *gin.Context) {
	teacher, _ := auth.TeacherFrom(c)
	s := h.Registry.Open(c.Request.Context(), teacher)
	c.JSON(http.StatusOK, s.View())
}

func (h *Handler) setMark(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mark, err := model.ParseMark(req.Status)
	if err != nil {
		fail(c, attendance.ErrInvalidMark)
		return
	}
	s := h.session(c)
	if err := s.SetMark(c.Request.Context(), c.Param("studentID"), mark); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *Handler) clearMark(c *gin.Context) {
	s := h.session(c)
	if err := s.ClearMark(c.Request.Context(), c.Param("studentID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *Handler) submit(c *gin.Context) {
	var req struct {
		Lock    bool `json:"lock"`
		Confirm bool `json:"confirm"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	s := h.session(c)
	res, err := s.Submit(c.Request.Context(), attendance.SubmitRequest{
		Lock:    req.Lock,
		Confirm: func() bool { return req.Confirm },
	})
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	switch res.Outcome {
	case syncer.Queued:
		status = http.StatusAccepted
	case syncer.Failed:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"outcome": res.Outcome.String(),
		"locked":  res.Locked,
		"notice":  res.Notice,
		"payload": res.Payload,
	})
}

func (h *Handler) flush(c *gin.Context) {
	report, err := h.Registry.Flush(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) queue(c *gin.Context) {
	items := h.Queue.Pending(c.Request.Context())
	if items == nil {
		items = []model.Payload{}
	}
	c.JSON(http.StatusOK, gin.H{"pending": len(items), "items": items})
}

func (h *Handler) session(c *gin.Context) *attendance.Session {
	teacher, _ := auth.TeacherFrom(c)
	return h.Registry.Session(c.Request.Context(), teacher)
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "notice": attendance.Notice(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrTimeWindowClosed):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrUnknownStudent):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrInvalidMark):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrLockNotConfirmed):
		return http.StatusPreconditionFailed
	case errors.Is(err, syncer.ErrServerRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
