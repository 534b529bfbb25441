package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/streamgate/internal/config"
	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"github.com/smallbiznis/streamgate/internal/providers/httpapi"
	"github.com/smallbiznis/streamgate/internal/stream/domain"
	"github.com/smallbiznis/streamgate/pkg/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// issueAttempts bounds the compare-and-swap loop in IssueKey.
const issueAttempts = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Repo       devicedomain.Repository
	Dispatcher jobs.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	rootDomain string
	repo       devicedomain.Repository
	dispatcher jobs.Dispatcher
	webhooks   *httpapi.Client
	metrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	webhooks := httpapi.New("webhook", "")
	if p.Config.Stream.WebhookTimeout > 0 {
		webhooks.HTTP.Timeout = p.Config.Stream.WebhookTimeout
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("stream.service"),
		rootDomain: strings.ToLower(strings.TrimSpace(p.Config.DNS.RootDomain)),
		repo:       p.Repo,
		dispatcher: p.Dispatcher,
		webhooks:   webhooks,
		metrics:    p.Metrics,
	}
}

func (s *Service) IssueKey(ctx context.Context, req domain.IssueKeyRequest) (domain.IssueKeyResponse, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return domain.IssueKeyResponse{}, domain.ErrInvalidIdentifier
	}
	publishHook, err := normalizeWebhook(req.PublishWebhook)
	if err != nil {
		return domain.IssueKeyResponse{}, err
	}
	publishEndHook, err := normalizeWebhook(req.PublishEndWebhook)
	if err != nil {
		return domain.IssueKeyResponse{}, err
	}

	for attempt := 0; attempt < issueAttempts; attempt++ {
		device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldIdentifier, identifier)
		if err != nil {
			return domain.IssueKeyResponse{}, err
		}
		if !device.Provisioned() || device.Subdomain == "" {
			return domain.IssueKeyResponse{}, domain.ErrNotProvisioned
		}
		if device.HasActiveSession() {
			return s.endpoints(device.Subdomain, device.StreamToken), nil
		}

		streamToken, err := token.Generate(domain.TokenLength)
		if err != nil {
			return domain.IssueKeyResponse{}, err
		}

		// Matching on the empty token means only one concurrent caller
		// can open the session.
		err = s.repo.Update(ctx, s.db,
			devicedomain.Fields{
				devicedomain.FieldStreamToken:       streamToken,
				devicedomain.FieldPublishWebhook:    publishHook,
				devicedomain.FieldPublishEndWebhook: publishEndHook,
			},
			devicedomain.Fields{
				devicedomain.FieldIdentifier:  identifier,
				devicedomain.FieldStreamToken: "",
			},
		)
		if errors.Is(err, devicedomain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.IssueKeyResponse{}, err
		}

		s.metrics.RecordStreamSession(ctx, "issued")
		logger.WithContext(ctx, s.log).Info("stream session opened",
			zap.String("subdomain", device.Subdomain),
		)
		return s.endpoints(device.Subdomain, streamToken), nil
	}

	return domain.IssueKeyResponse{}, domain.ErrTokenContention
}

func (s *Service) HandlePublish(ctx context.Context, streamToken, originURL string) error {
	log := logger.WithContext(ctx, s.log)
	streamToken = strings.TrimSpace(streamToken)
	if streamToken == "" {
		s.metrics.RecordStreamSession(ctx, "rejected")
		return domain.ErrUnauthorizedStream
	}

	device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldStreamToken, streamToken)
	if err != nil {
		if errors.Is(err, devicedomain.ErrNotFound) {
			s.metrics.RecordStreamSession(ctx, "rejected")
			log.Info("publish rejected for unknown stream token")
			return domain.ErrUnauthorizedStream
		}
		return err
	}

	if origin := subdomainFromURL(originURL, s.rootDomain); origin != "" && !strings.EqualFold(origin, device.Subdomain) {
		log.Warn("publish origin does not match device subdomain",
			zap.String("origin_subdomain", origin),
			zap.String("subdomain", device.Subdomain),
		)
	}

	s.metrics.RecordStreamSession(ctx, "published")
	s.fireWebhook(ctx, device.PublishWebhook, streamToken, domain.EventPublish)
	return nil
}

func (s *Service) HandleUnpublish(ctx context.Context, streamToken string) error {
	streamToken = strings.TrimSpace(streamToken)
	if streamToken == "" {
		return nil
	}

	device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldStreamToken, streamToken)
	if err != nil {
		if errors.Is(err, devicedomain.ErrNotFound) {
			return nil
		}
		return err
	}

	err = s.repo.Update(ctx, s.db,
		devicedomain.Fields{devicedomain.FieldStreamToken: ""},
		devicedomain.Fields{
			devicedomain.FieldIdentifier:  device.Identifier,
			devicedomain.FieldStreamToken: streamToken,
		},
	)
	if errors.Is(err, devicedomain.ErrNotFound) {
		// Another callback already ended this session.
		return nil
	}
	if err != nil {
		return err
	}

	s.metrics.RecordStreamSession(ctx, "ended")
	s.fireWebhook(ctx, device.PublishEndWebhook, streamToken, domain.EventPublishEnd)
	return nil
}

func (s *Service) HandleWebhookJob(ctx context.Context, payload json.RawMessage) error {
	var args domain.WebhookArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("decode %s args: %w", domain.JobInvokeWebhook, err)
	}

	err := s.webhooks.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   args.URL,
		Body:   domain.WebhookPayload{StreamToken: args.StreamToken, Event: args.Event},
	})
	if err != nil {
		s.metrics.RecordWebhookCall(ctx, args.Event, "error")
		return err
	}
	s.metrics.RecordWebhookCall(ctx, args.Event, "ok")
	return nil
}

func (s *Service) fireWebhook(ctx context.Context, hook *string, streamToken, event string) {
	if hook == nil || strings.TrimSpace(*hook) == "" {
		return
	}
	handle, err := s.dispatcher.Submit(ctx, domain.JobInvokeWebhook, domain.WebhookArgs{
		URL:         *hook,
		StreamToken: streamToken,
		Event:       event,
	})
	log := logger.WithContext(ctx, s.log)
	if err != nil {
		log.Error("failed to submit webhook job", zap.String("event", event), zap.Error(err))
		return
	}
	log.Debug("webhook job submitted", zap.String("event", event), zap.String("job_id", handle.ID))
}

func (s *Service) endpoints(subdomain, streamToken string) domain.IssueKeyResponse {
	host := strings.ToLower(subdomain) + "." + s.rootDomain
	return domain.IssueKeyResponse{
		StreamToken:  streamToken,
		RTMPEndpoint: "rtmp://" + host + "/live/" + streamToken,
		HLSEndpoint:  "http://" + host + "/hls/" + streamToken + "/index.m3u8",
	}
}

// normalizeWebhook treats blank URLs as unset and rejects anything that is
// not an absolute http(s) URL.
func normalizeWebhook(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, domain.ErrInvalidWebhookURL
	}
	return &value, nil
}

// subdomainFromURL extracts the leading label of the host in origin, e.g.
// "rtmp://abcd1234.example.com/live" yields "abcd1234".
func subdomainFromURL(origin, rootDomain string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if rootDomain != "" {
		trimmed := strings.TrimSuffix(host, "."+rootDomain)
		if trimmed == host {
			return ""
		}
		host = trimmed
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}
