package compute

import (
	"context"
	"errors"
	"time"
)

const StatusRunning = "running"

var (
	ErrImageNotFound = errors.New("image_not_found")
	ErrNoRegions     = errors.New("no_regions")
	ErrNoPublicIPv4  = errors.New("no_public_ipv4")
	ErrNotConfigured = errors.New("compute_not_configured")
)

type Region struct {
	ID      string `json:"id"`
	Country string `json:"country"`
	Status  string `json:"status"`
}

type Image struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Instance struct {
	ID           int64
	Label        string
	Region       string
	IPv4         string
	Status       string
	RootPassword string
}

type CreateInstanceRequest struct {
	Type    string
	Region  string
	ImageID string
	Label   string
}

// Provider creates and inspects compute instances.
type Provider interface {
	ListRegions(ctx context.Context) ([]Region, error)
	FindImageByLabel(ctx context.Context, label string) (Image, error)
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (Instance, error)
	// WaitForStatus polls until the instance reports status or ctx ends.
	WaitForStatus(ctx context.Context, id int64, status string, interval time.Duration) error
}
