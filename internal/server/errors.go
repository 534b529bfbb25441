package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/streamgate/internal/checkout/domain"
	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/internal/providers/payment"
	streamdomain "github.com/smallbiznis/streamgate/internal/stream/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, checkoutdomain.ErrCheckoutFailed):
		message := "forbidden"
		if errors.Is(err, checkoutdomain.ErrCheckoutFailed) {
			message = err.Error()
		}
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: message,
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, streamdomain.ErrNotProvisioned),
		errors.Is(err, streamdomain.ErrTokenContention),
		errors.Is(err, checkoutdomain.ErrNoSubscription):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, streamdomain.ErrNotProvisioned):
		return "streaming server is still being provisioned"
	case errors.Is(err, checkoutdomain.ErrNoSubscription):
		return "no subscription recorded for this session"
	default:
		return "conflict"
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return "validation_error", vErr.Errors[0].Code
	}
	if isValidationError(err) {
		return "validation_error", validationErrorCode(err)
	}
	_, payload := mapError(err)
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, payment.ErrInvalidPayload),
		errors.Is(err, devicedomain.ErrInvalidIdentifier),
		errors.Is(err, streamdomain.ErrInvalidIdentifier),
		errors.Is(err, streamdomain.ErrInvalidWebhookURL),
		errors.Is(err, checkoutdomain.ErrInvalidSession),
		errors.Is(err, checkoutdomain.ErrInvalidDonation),
		errors.Is(err, checkoutdomain.ErrNoEmail):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, devicedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, payment.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, streamdomain.ErrInvalidIdentifier),
		errors.Is(err, devicedomain.ErrInvalidIdentifier):
		return "invalid_api_key"
	case errors.Is(err, checkoutdomain.ErrInvalidSession):
		return "invalid_session_id"
	case errors.Is(err, checkoutdomain.ErrNoEmail):
		return "invalid_email"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_webhook_url":
		return "webhook must be an absolute http or https URL"
	default:
		return "invalid value"
	}
}
