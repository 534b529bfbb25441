package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/streamgate/internal/clock"
	"github.com/smallbiznis/streamgate/internal/config"
	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"github.com/smallbiznis/streamgate/internal/observability/tracing"
	"github.com/smallbiznis/streamgate/internal/providers/compute"
	"github.com/smallbiznis/streamgate/internal/providers/dns"
	"github.com/smallbiznis/streamgate/internal/providers/email"
	"github.com/smallbiznis/streamgate/internal/provisioning/domain"
	"github.com/smallbiznis/streamgate/internal/ratelimit"
	"github.com/smallbiznis/streamgate/pkg/token"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	tracerName   = "streamgate/provisioning"
	lockKeyFmt   = "streamgate:provision:%s"
	lockTTL      = 15 * time.Minute
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeSkip  = "skipped"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Profiles *config.ProvisioningProfileHolder
	Clock    clock.Clock
	Repo     devicedomain.Repository
	Compute  compute.Provider
	DNS      dns.Provider
	Email    email.Provider
	Locker   *ratelimit.Locker   `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	profiles *config.ProvisioningProfileHolder
	clock    clock.Clock
	repo     devicedomain.Repository
	compute  compute.Provider
	dns      dns.Provider
	email    email.Provider
	locker   *ratelimit.Locker
	metrics  *obsmetrics.Metrics

	// Sessions running in this process; used when no Redis locker is set.
	inflight sync.Map
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("provisioning.service"),
		cfg:      p.Config,
		profiles: p.Profiles,
		clock:    clk,
		repo:     p.Repo,
		compute:  p.Compute,
		dns:      p.DNS,
		email:    p.Email,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

func (s *Service) HandleJob(ctx context.Context, payload json.RawMessage) error {
	var args domain.SetupArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("decode %s args: %w", domain.JobSetupStreamingInstance, err)
	}
	return s.Provision(ctx, args.StripeSessionID)
}

func (s *Service) Provision(ctx context.Context, sessionID string) (err error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrInvalidSession
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "provisioning.setup_streaming_instance",
		attribute.String("stripe_session_id", sessionID),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.WithContext(ctx, s.log).With(zap.String("stripe_session_id", sessionID))

	if s.locker != nil {
		key := fmt.Sprintf(lockKeyFmt, sessionID)
		lockToken, acquired, lockErr := s.locker.TryLock(ctx, key, lockTTL)
		if lockErr != nil {
			return fmt.Errorf("acquire provisioning lock: %w", lockErr)
		}
		if !acquired {
			log.Info("provisioning already in progress for session")
			s.metrics.RecordProvisioning(ctx, domain.StepLoad, outcomeSkip)
			return nil
		}
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, lockToken); releaseErr != nil {
				log.Warn("failed to release provisioning lock", zap.Error(releaseErr))
			}
		}()
	} else {
		if _, busy := s.inflight.LoadOrStore(sessionID, struct{}{}); busy {
			log.Info("provisioning already in progress for session")
			s.metrics.RecordProvisioning(ctx, domain.StepLoad, outcomeSkip)
			return nil
		}
		defer s.inflight.Delete(sessionID)
	}

	var device *devicedomain.Device
	if err := s.step(ctx, domain.StepLoad, func(ctx context.Context) error {
		var findErr error
		device, findErr = s.repo.FindOne(ctx, s.db, devicedomain.FieldStripeSessionID, sessionID)
		return findErr
	}); err != nil {
		return err
	}
	if device.Provisioned() {
		log.Info("device already provisioned, skipping", zap.String("subdomain", device.Subdomain))
		s.metrics.RecordProvisioning(ctx, domain.StepLoad, outcomeSkip)
		return nil
	}

	profile := s.profiles.Get()

	var region string
	if err := s.step(ctx, domain.StepRegion, func(ctx context.Context) error {
		regions, listErr := s.compute.ListRegions(ctx)
		if listErr != nil {
			return listErr
		}
		region = pickRegion(regions, profile.PreferredRegion)
		return nil
	}); err != nil {
		return err
	}

	var image compute.Image
	if err := s.step(ctx, domain.StepImage, func(ctx context.Context) error {
		var imageErr error
		image, imageErr = s.compute.FindImageByLabel(ctx, profile.ImageLabel)
		return imageErr
	}); err != nil {
		return err
	}

	label := slug.Make("stream-" + sessionID)
	var instance compute.Instance
	if err := s.step(ctx, domain.StepInstance, func(ctx context.Context) error {
		var createErr error
		instance, createErr = s.compute.CreateInstance(ctx, compute.CreateInstanceRequest{
			Type:    profile.InstanceType,
			Region:  region,
			ImageID: image.ID,
			Label:   label,
		})
		if createErr != nil {
			return createErr
		}
		log.Info("instance created",
			zap.Int64("linode_id", instance.ID),
			zap.String("region", region),
			zap.String("ip_address", instance.IPv4),
		)
		if !s.cfg.Linode.WaitForBoot {
			return nil
		}
		return s.compute.WaitForStatus(ctx, instance.ID, compute.StatusRunning, s.cfg.Linode.PollInterval)
	}); err != nil {
		return err
	}

	var subdomain string
	if err := s.step(ctx, domain.StepSubdomain, func(context.Context) error {
		var genErr error
		subdomain, genErr = token.Generate(domain.SubdomainLength)
		return genErr
	}); err != nil {
		return err
	}

	var zoneID string
	if err := s.step(ctx, domain.StepZone, func(ctx context.Context) error {
		var zoneErr error
		zoneID, zoneErr = s.dns.ZoneID(ctx, s.cfg.DNS.RootDomain)
		return zoneErr
	}); err != nil {
		return err
	}

	var record dns.Record
	if err := s.step(ctx, domain.StepDNS, func(ctx context.Context) error {
		var recordErr error
		record, recordErr = s.dns.CreateRecord(ctx, zoneID, dns.Record{
			Name:    subdomain,
			Type:    "A",
			Content: instance.IPv4,
		})
		return recordErr
	}); err != nil {
		return err
	}

	if err := s.step(ctx, domain.StepPersist, func(ctx context.Context) error {
		return s.repo.Update(ctx, s.db,
			devicedomain.Fields{
				devicedomain.FieldLinodeID:          instance.ID,
				devicedomain.FieldIPAddress:         instance.IPv4,
				devicedomain.FieldPassword:          instance.RootPassword,
				devicedomain.FieldSubdomain:         subdomain,
				devicedomain.FieldZoneID:            zoneID,
				devicedomain.FieldPublishWebhook:    nil,
				devicedomain.FieldPublishEndWebhook: nil,
				devicedomain.FieldStreamToken:       "",
				devicedomain.FieldProvisionMeta: datatypes.JSONMap{
					devicedomain.MetaRegion:        region,
					devicedomain.MetaImageID:       image.ID,
					devicedomain.MetaInstanceLabel: label,
					devicedomain.MetaDNSRecordID:   record.ID,
					"provisioned_at":               s.clock.Now().Format(time.RFC3339),
				},
			},
			devicedomain.Fields{devicedomain.FieldStripeSessionID: sessionID},
		)
	}); err != nil {
		return err
	}

	if err := s.step(ctx, domain.StepNotify, func(ctx context.Context) error {
		return s.notify(ctx, sessionID, profile)
	}); err != nil {
		return err
	}

	s.metrics.RecordProvisioning(ctx, domain.StepNotify, outcomeOK)
	log.Info("streaming instance provisioned",
		zap.Int64("linode_id", instance.ID),
		zap.String("subdomain", subdomain),
	)
	return nil
}

func (s *Service) notify(ctx context.Context, sessionID string, profile config.ProvisioningProfile) error {
	device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldStripeSessionID, sessionID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(device.Email) == "" {
		return domain.ErrNoRecipient
	}

	data := map[string]interface{}{
		"api_key":    device.Identifier,
		"cancel_url": s.cancelURL(sessionID),
		"rtmp_host":  strings.ToLower(device.Subdomain) + "." + s.cfg.DNS.RootDomain,
	}
	if profile.EmailSubject != "" {
		data["subject"] = profile.EmailSubject
	}
	return s.email.SendTemplate(ctx, []string{device.Email}, email.TemplateStreamReady, data)
}

func (s *Service) cancelURL(sessionID string) string {
	return s.cfg.SiteURL + "/cancel/?sessionId=" + url.QueryEscape(sessionID)
}

// step runs fn inside its own span and converts a failure into a StepError.
func (s *Service) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "provisioning."+name,
		attribute.String("provisioning.step", name),
	)
	start := s.clock.Now()
	err := fn(ctx)
	tracing.End(span, err)
	if err == nil {
		return nil
	}

	s.metrics.RecordProvisioning(ctx, name, outcomeError)
	logger.WithContext(ctx, s.log).Error("provisioning step failed",
		zap.String("step", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
		zap.Error(err),
	)

	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return err
	}
	return &domain.StepError{Step: name, Err: err}
}

// pickRegion prefers the configured region when the provider offers it and
// otherwise takes the first region listed.
func pickRegion(regions []compute.Region, preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, r := range regions {
			if r.ID == preferred {
				return r.ID
			}
		}
	}
	if len(regions) == 0 {
		return ""
	}
	return regions[0].ID
}
