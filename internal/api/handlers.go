// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg"
	"github.com/ZSC714725/videoconverter/internal/task"
)

// Handler holds dependencies
type Handler struct {
	store  task.Store
	ffmpeg ffmpeg.FFmpeg
}

// NewHandler creates API handler
func NewHandler(store task.Store, ff ffmpeg.FFmpeg) *Handler {
	return &Handler{store: store, ffmpeg: ff}
}

// Register adds the routes to g
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/formats", h.Formats)
	g.GET("/skills", h.Skills)
	g.POST("/skills/reload", h.ReloadSkills)

	g.GET("/conversions", h.ListConversions)
	g.POST("/conversions", h.AddConversion)
	g.GET("/conversions/:id", h.GetConversion)
	g.DELETE("/conversions/:id", h.DeleteConversion)
	g.GET("/conversions/:id/events", h.Events)
	g.GET("/conversions/:id/report", h.GetReport)
	g.PUT("/conversions/:id/command", h.Command)
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddConversion POST /api/v1/conversions
func (h *Handler) AddConversion(c *gin.Context) {
	var req ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	format, err := convert.ParseFormat(req.Format)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	b, err := h.store.Submit(convert.Request{
		Inputs:    req.Inputs,
		Format:    format,
		Bitrate:   req.Bitrate,
		FrameRate: req.FrameRate,
	})
	if err != nil {
		if errors.Is(err, convert.ErrInvalidRequest) {
			errResp(c, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		if errors.Is(err, task.ErrShutdown) {
			errResp(c, http.StatusServiceUnavailable, "Shutting down", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Submit failed", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, snapshotToConversion(b.Snapshot()))
}

// ListConversions GET /api/v1/conversions
func (h *Handler) ListConversions(c *gin.Context) {
	status := task.Status(c.DefaultQuery("status", ""))
	switch status {
	case "", task.StatusRunning, task.StatusFinished, task.StatusCancelled:
	default:
		errResp(c, http.StatusBadRequest, "Unknown status", "Known: running, finished, cancelled")
		return
	}

	batches := h.store.List(status)
	out := make([]Conversion, 0, len(batches))
	for _, b := range batches {
		out = append(out, snapshotToConversion(b.Snapshot()))
	}

	c.JSON(http.StatusOK, out)
}

// GetConversion GET /api/v1/conversions/:id
func (h *Handler) GetConversion(c *gin.Context) {
	b, ok := h.batch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshotToConversion(b.Snapshot()))
}

// DeleteConversion DELETE /api/v1/conversions/:id
func (h *Handler) DeleteConversion(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown conversion ID", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// Events GET /api/v1/conversions/:id/events
//
// Streams a "progress" event per job state, starting with the current one,
// and a final "done" event with the whole conversion.
func (h *Handler) Events(c *gin.Context) {
	b, ok := h.batch(c)
	if !ok {
		return
	}

	snap, updates, unsubscribe := b.Watch()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	for _, j := range snap.Jobs {
		c.SSEvent("progress", jobToAPI(j))
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				c.SSEvent("done", snapshotToConversion(b.Snapshot()))
				return false
			}
			c.SSEvent("progress", updateToAPI(u))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// GetReport GET /api/v1/conversions/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	b, ok := h.batch(c)
	if !ok {
		return
	}

	snap := b.Snapshot()
	report := Report{ID: snap.ID, Jobs: make([]JobReport, len(snap.Jobs))}
	for i, j := range snap.Jobs {
		jr := JobReport{
			Index:  j.Index,
			Input:  j.Input,
			Status: string(j.Status),
			Error:  j.Error,
			Log:    make([][2]string, len(j.Log)),
		}
		for k, line := range j.Log {
			jr.Log[k] = [2]string{
				line.Timestamp.Format("2006-01-02 15:04:05.000"),
				line.Data,
			}
		}
		report.Jobs[i] = jr
	}

	c.JSON(http.StatusOK, report)
}

// Command PUT /api/v1/conversions/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "cancel":
		err = h.store.Cancel(id)
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			errResp(c, http.StatusNotFound, "Unknown conversion ID", err.Error())
		case errors.Is(err, task.ErrFinished):
			errResp(c, http.StatusConflict, "Command failed", err.Error())
		default:
			errResp(c, http.StatusBadRequest, "Command failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// Formats GET /api/v1/formats
func (h *Handler) Formats(c *gin.Context) {
	c.JSON(http.StatusOK, formatsToAPI(h.ffmpeg.Skills()))
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	sk := h.ffmpeg.Skills()
	c.JSON(http.StatusOK, skillsToAPI(sk))
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.ffmpeg.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	sk := h.ffmpeg.Skills()
	c.JSON(http.StatusOK, skillsToAPI(sk))
}

func (h *Handler) batch(c *gin.Context) (*task.Batch, bool) {
	b, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown conversion ID", err.Error())
		return nil, false
	}
	return b, true
}

func snapshotToConversion(s task.Snapshot) Conversion {
	conv := Conversion{
		ID:        s.ID,
		Status:    string(s.Status),
		Format:    string(s.Request.Format),
		Bitrate:   s.Request.Bitrate,
		FrameRate: s.Request.FrameRate,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		CreatedAt: s.CreatedAt.Unix(),
		Jobs:      make([]Job, len(s.Jobs)),
	}
	if !s.FinishedAt.IsZero() {
		conv.FinishedAt = s.FinishedAt.Unix()
	}
	for i, j := range s.Jobs {
		conv.Jobs[i] = jobToAPI(j)
	}
	return conv
}

func jobToAPI(j task.JobState) Job {
	return Job{
		Index:    j.Index,
		Input:    j.Input,
		Output:   j.Output,
		Status:   string(j.Status),
		Progress: j.Progress,
		Usage:    j.Usage,
		Error:    j.Error,
	}
}

func updateToAPI(u convert.Update) Job {
	return Job{
		Index:    u.Index,
		Input:    u.Input,
		Output:   u.Output,
		Status:   string(u.Status),
		Progress: u.Progress,
		Usage:    u.Usage,
		Error:    u.Error,
	}
}
