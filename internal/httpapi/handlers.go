// Package httpapi is the loopback control surface for the embedding layer.
// It replaces direct object access from a view: state snapshots, track
// toggles and session teardown over local HTTP.
package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/orch"
)

// SessionController is what both session variants expose to the surface.
type SessionController interface {
	Snapshot() orch.Status
	ToggleAudio(enabled bool) error
	ToggleVideo(enabled bool) error
	Close()
}

// HumanExtras are the human-variant-only operations.
type HumanExtras interface {
	SwitchCamera(deviceID string) error
	Reconnect(ctx context.Context) error
}

// AvatarExtras are the avatar-variant-only operations.
type AvatarExtras interface {
	Ask(ctx context.Context, text string) (domain.AvatarUtterance, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type CameraRequest struct {
	DeviceID string `json:"device_id"`
}

type AskRequest struct {
	Text string `json:"text"`
}

type TranscribeRequest struct {
	Audio string `json:"audio"`
}

func SetupRouter(ctl SessionController) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	api.GET("/session", handlerStatus(ctl))
	api.POST("/session/audio", handlerToggle(ctl.ToggleAudio))
	api.POST("/session/video", handlerToggle(ctl.ToggleVideo))
	api.POST("/session/end", handlerEnd(ctl))

	if h, ok := ctl.(HumanExtras); ok {
		api.POST("/session/camera", handlerCamera(h))
		api.POST("/session/reconnect", handlerReconnect(h))
	}
	if a, ok := ctl.(AvatarExtras); ok {
		api.POST("/session/ask", handlerAsk(a))
		api.POST("/session/transcribe", handlerTranscribe(a))
	}

	return router
}

func handlerStatus(ctl SessionController) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Snapshot())
	}
}

func handlerToggle(toggle func(bool) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ToggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid body"})
			return
		}
		if err := toggle(req.Enabled); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
	}
}

func handlerEnd(ctl SessionController) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctl.Close()
		c.JSON(http.StatusOK, gin.H{"state": domain.StateEnded.String()})
	}
}

func handlerCamera(h HumanExtras) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CameraRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid device_id"})
			return
		}
		if err := h.SwitchCamera(req.DeviceID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"device_id": req.DeviceID})
	}
}

func handlerReconnect(h HumanExtras) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.Reconnect(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reconnected": true})
	}
}

func handlerAsk(a AvatarExtras) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AskRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
			return
		}
		utt, err := a.Ask(c.Request.Context(), req.Text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"text":                  utt.Text,
			"estimated_duration_ms": utt.EstimatedDuration.Milliseconds(),
		})
	}
}

func handlerTranscribe(a AvatarExtras) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TranscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Audio == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid audio"})
			return
		}
		audio, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audio is not valid base64"})
			return
		}
		text, err := a.Transcribe(c.Request.Context(), audio)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"text": text})
	}
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTurnInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusGone
	default:
		switch domain.CategoryOf(err) {
		case domain.CategoryDevice:
			status = http.StatusFailedDependency
		case domain.CategorySignaling, domain.CategoryTransport:
			status = http.StatusBadGateway
		case domain.CategoryNegotiation:
			status = http.StatusConflict
		case domain.CategoryTranscription:
			status = http.StatusUnprocessableEntity
		}
	}
	c.JSON(status, gin.H{
		"error":    err.Error(),
		"category": domain.CategoryOf(err).String(),
	})
}
