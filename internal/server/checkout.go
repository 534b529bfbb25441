package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/streamgate/internal/checkout/domain"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	"go.uber.org/zap"
)

// Stripe webhook bodies stay well under this.
const maxWebhookBody = 1 << 20

type createCheckoutSessionRequest struct {
	Donation int64 `json:"donation"`
}

func (s *Server) GetPublishableKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publishableKey": s.checkoutSvc.PublishableKey()})
}

func (s *Server) GetCheckoutSession(c *gin.Context) {
	apiKey, err := s.checkoutSvc.APIKeyForSession(c.Request.Context(), c.Query("sessionId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_key": apiKey})
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		AbortWithError(c, invalidRequestError())
		return
	}

	sessionID, err := s.checkoutSvc.CreateSession(c.Request.Context(), req.Donation)
	var refused *checkoutdomain.CheckoutError
	if errors.As(err, &refused) {
		// Checkout pages read error as a plain string.
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": refused.Error()})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkoutSessionId": sessionID})
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := strings.TrimSpace(c.GetHeader("Stripe-Signature"))
	if err := s.checkoutSvc.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		logger.FromContext(c.Request.Context()).Warn("payment webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	if err := s.checkoutSvc.Cancel(c.Request.Context(), c.Query("sessionId")); err != nil {
		AbortWithError(c, err)
		return
	}

	s.renderCancelPage(c)
}
