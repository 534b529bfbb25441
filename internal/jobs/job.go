package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/streamgate/pkg/telemetry/correlation"
)

var (
	ErrUnknownJob   = errors.New("unknown_job")
	ErrEmptyJobName = errors.New("empty_job_name")
	ErrBrokerClosed = errors.New("broker_closed")
)

// Handler runs one job. Returned errors are logged by the runner and the job
// is acknowledged anyway.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Handle identifies a submitted job. Submitters never wait on it.
type Handle struct {
	ID            string
	Name          string
	CorrelationID string
}

// Dispatcher hands named jobs to the background runner.
//
// Delivery is at-least-once with no ordering guarantee once more than one
// worker runs. Handlers must tolerate a redelivered payload. With Redis each
// replica owns its processing list, so replicas must use distinct
// JOB_REPLICA_ID values.
type Dispatcher interface {
	Submit(ctx context.Context, name string, args any) (Handle, error)
}

// Envelope is the wire form of a queued job.
type Envelope struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Args          json.RawMessage `json:"args"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

func (e Envelope) Handle() Handle {
	return Handle{ID: e.ID, Name: e.Name, CorrelationID: e.CorrelationID}
}

func newEnvelope(ctx context.Context, name string, args any) (Envelope, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Envelope{}, ErrEmptyJobName
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s args: %w", name, err)
	}

	cid := correlation.ExtractCorrelationID(ctx)
	if cid == "" {
		cid = correlation.NewID()
	}

	return Envelope{
		ID:            correlation.NewID(),
		Name:          name,
		Args:          payload,
		CorrelationID: cid,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// Registry maps job names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds a handler to name. Registering the same name twice panics,
// which surfaces wiring mistakes at startup.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("jobs: handler %q already registered", name))
	}
	r.handlers[name] = handler
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}
