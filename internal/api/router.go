// Package api exposes the HTTP surface of the bridge: the reply-send
// endpoint used by agents, a health probe, and the metrics endpoint.
package api

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gotrs-io/mailbridge/internal/config"
	"github.com/gotrs-io/mailbridge/internal/outbound"
)

// replySender is what the sendReply handler needs from the outbound layer.
type replySender interface {
	Send(reply outbound.Reply) error
}

type sendReplyRequest struct {
	To             string `json:"to" binding:"required,email"`
	From           string `json:"from" binding:"omitempty,email"`
	Subject        string `json:"subject" binding:"required"`
	Body           string `json:"body" binding:"required"`
	EmailMessageID string `json:"emailMessageId"`
	EmailThreadID  string `json:"emailThreadId"`
}

// NewRouter assembles the gin engine with all routes registered.
func NewRouter(cfg *config.Config, sender replySender, logger *log.Logger) *gin.Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[API] ", log.LstdFlags)
	}
	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authed := r.Group("/", apiKeyAuth(cfg.Server.APIKey))
	authed.POST("/sendReply", sendReplyHandler(sender, logger))

	return r
}

// apiKeyAuth rejects requests whose x-api-key header does not match the
// configured key. The comparison is constant time.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("x-api-key")
		if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}

func sendReplyHandler(sender replySender, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendReplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": err.Error(),
			})
			return
		}

		reply := outbound.Reply{
			To:        req.To,
			From:      req.From,
			Subject:   req.Subject,
			Body:      req.Body,
			InReplyTo: req.EmailMessageID,
			ThreadID:  req.EmailThreadID,
		}
		if err := sender.Send(reply); err != nil {
			logger.Printf("send reply failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{
				"status":  "error",
				"message": "failed to send reply",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Reply sent successfully",
		})
	}
}
