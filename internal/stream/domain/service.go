package domain

import (
	"context"
	"encoding/json"
	"errors"
)

const JobInvokeWebhook = "invoke_webhook"

const TokenLength = 25

// Events posted to customer webhooks.
const (
	EventPublish    = "publish"
	EventPublishEnd = "publish_end"
)

type IssueKeyRequest struct {
	Identifier        string
	PublishWebhook    *string
	PublishEndWebhook *string
}

type IssueKeyResponse struct {
	StreamToken  string `json:"stream_token"`
	RTMPEndpoint string `json:"rtmp_stream_endpoint"`
	HLSEndpoint  string `json:"hls_endoint"`
}

// WebhookArgs are the arguments of the invoke_webhook job.
type WebhookArgs struct {
	URL         string `json:"url"`
	StreamToken string `json:"stream_token"`
	Event       string `json:"event"`
}

// WebhookPayload is the JSON body POSTed to a customer webhook.
type WebhookPayload struct {
	StreamToken string `json:"stream_token"`
	Event       string `json:"event"`
}

type Service interface {
	// IssueKey returns the open session token for identifier, creating one
	// when no session is active.
	IssueKey(ctx context.Context, req IssueKeyRequest) (IssueKeyResponse, error)
	// HandlePublish authorizes a stream start. Unknown tokens yield
	// ErrUnauthorizedStream.
	HandlePublish(ctx context.Context, streamToken, originURL string) error
	// HandleUnpublish ends the session. Unknown tokens are ignored.
	HandleUnpublish(ctx context.Context, streamToken string) error
	HandleWebhookJob(ctx context.Context, payload json.RawMessage) error
}

var (
	ErrInvalidIdentifier  = errors.New("invalid_identifier")
	ErrInvalidWebhookURL  = errors.New("invalid_webhook_url")
	ErrUnauthorizedStream = errors.New("unauthorized_stream")
	ErrNotProvisioned     = errors.New("not_provisioned")
	ErrTokenContention    = errors.New("token_contention")
)
