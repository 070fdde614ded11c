package kiosk

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const maxCommandBytes = 64 * 1024

func (a *App) registerRoutes() {
	r := a.router
	r.GET("/health", a.handleHealth)
	r.GET("/ready", a.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/jobs", a.handleSubmitJob)
	api.GET("/updates", a.handleUpdates)
	api.GET("/tasks", a.handleTasks)

	api.GET("/labware", a.handleListLabware)
	api.GET("/labware/categories", a.handleLabwareCategories)

	p := api.Group("/protocol")
	p.GET("", a.handleGetProtocol)
	p.POST("", a.handleStartProtocol)
	p.GET("/issues", a.handleProtocolIssues)
	p.POST("/steps", a.handleAddStep)
	p.PATCH("/steps/:id", a.handleUpdateStep)
	p.DELETE("/steps/:id", a.handleDeleteStep)
	p.PUT("/labware/:slot", a.handlePutLabware)
	p.DELETE("/labware/:slot", a.handleDeleteLabware)
	p.POST("/liquids", a.handleAddLiquid)
	p.PATCH("/liquids/:id", a.handleUpdateLiquid)
	p.DELETE("/liquids/:id", a.handleDeleteLiquid)
	p.POST("/liquid-state", a.handleAssignLiquid)
}

func (a *App) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": a.opts.Now().Sub(a.started).Round(time.Second).String(),
	}
	if a.opts.BackendStatus != nil {
		body["backend"] = a.opts.BackendStatus()
	}
	c.JSON(http.StatusOK, body)
}

func (a *App) handleReady(c *gin.Context) {
	commandUp := a.opts.Commander != nil
	telemetryUp := a.opts.Telemetry != nil
	if a.opts.Health != nil {
		commandUp = commandUp && a.opts.Health.CommandUp()
		telemetryUp = telemetryUp && a.opts.Health.TelemetryUp()
	}
	status := http.StatusOK
	if !commandUp || !telemetryUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":     status == http.StatusOK,
		"command":   commandUp,
		"telemetry": telemetryUp,
	})
}

type jobRequest struct {
	Command string `json:"command"`
}

// handleSubmitJob forwards one command and relays the backend reply verbatim.
// The body is either raw text or {"command": "..."}; the command is opaque and
// forwarded byte for byte. Blank and oversized commands are rejected.
func (a *App) handleSubmitJob(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if len(raw) > maxCommandBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "command too large", "limit": maxCommandBytes})
		return
	}
	command := string(raw)
	if strings.Contains(c.ContentType(), "json") {
		var req jobRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
		command = req.Command
	}
	if strings.TrimSpace(command) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command required"})
		return
	}

	reply := bridge.ErrorReply
	if a.opts.Commander != nil {
		reply = a.opts.Commander.SendCommand(c.Request.Context(), command)
	}
	log.Debug().Msgf("kiosk.App.handleSubmitJob command=%q reply_bytes=%d", command, len(reply))
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(reply))
}

func (a *App) handleTasks(c *gin.Context) {
	tasks := []bridge.TaskStatus{}
	if a.opts.Tasks != nil {
		if listed := a.opts.Tasks.Tasks(); listed != nil {
			tasks = listed
		}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (a *App) handleListLabware(c *gin.Context) {
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		c.JSON(http.StatusOK, gin.H{"labware": a.opts.Catalog.ByCategory(category)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"labware": a.opts.Catalog.All()})
}

func (a *App) handleLabwareCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": a.opts.Catalog.Categories()})
}

// writeError maps kiosk sentinels onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrStepNotFound), errors.Is(err, ErrLiquidNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrDeckSetupProtected):
		status = http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "requestId": observability.RequestID(c)})
}
