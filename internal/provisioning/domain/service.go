package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// JobSetupStreamingInstance is the job that turns a paid checkout into a
// running, DNS-addressable streaming server.
const JobSetupStreamingInstance = "setup_streaming_instance"

const SubdomainLength = 8

// Steps, in execution order.
const (
	StepLoad      = "load"
	StepRegion    = "region"
	StepImage     = "image"
	StepInstance  = "instance"
	StepSubdomain = "subdomain"
	StepZone      = "zone"
	StepDNS       = "dns"
	StepPersist   = "persist"
	StepNotify    = "notify"
)

type SetupArgs struct {
	StripeSessionID string `json:"stripe_session_id"`
}

type Service interface {
	// Provision runs every step for the device bound to sessionID. It stops
	// at the first failure and leaves earlier side effects in place.
	Provision(ctx context.Context, sessionID string) error
	// HandleJob decodes SetupArgs and calls Provision.
	HandleJob(ctx context.Context, payload json.RawMessage) error
}

var (
	ErrInvalidSession = errors.New("invalid_session")
	ErrNoRecipient    = errors.New("no_recipient")
)

// StepError reports which step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return "provisioning step " + e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// Reason labels the error for job metrics.
func (e *StepError) Reason() string { return "step_" + e.Step }
