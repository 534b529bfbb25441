package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	streamdomain "github.com/smallbiznis/streamgate/internal/stream/domain"
)

type getStreamKeyRequest struct {
	APIKey            string  `json:"api_key"`
	PublishWebhook    *string `json:"publish_webhook"`
	PublishEndWebhook *string `json:"publish_end_webhook"`
}

// streamCallback is the form nginx-rtmp posts on publish and publish_done.
type streamCallback struct {
	Name   string `form:"name"`
	SWFURL string `form:"swfUrl"`
}

func (s *Server) GetStreamKey(c *gin.Context) {
	var req getStreamKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.streamSvc.IssueKey(c.Request.Context(), streamdomain.IssueKeyRequest{
		Identifier:        req.APIKey,
		PublishWebhook:    req.PublishWebhook,
		PublishEndWebhook: req.PublishEndWebhook,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) Publish(c *gin.Context) {
	var form streamCallback
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, "invalid publish")
		return
	}

	err := s.streamSvc.HandlePublish(c.Request.Context(), form.Name, form.SWFURL)
	if errors.Is(err, streamdomain.ErrUnauthorizedStream) {
		c.String(http.StatusBadRequest, "invalid publish")
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": "ok"})
}

func (s *Server) ResetToken(c *gin.Context) {
	var form streamCallback
	if err := c.ShouldBind(&form); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.streamSvc.HandleUnpublish(c.Request.Context(), form.Name); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": "ok"})
}
