package dns

import (
	"context"
	"errors"
)

var (
	ErrZoneNotFound  = errors.New("zone_not_found")
	ErrNotConfigured = errors.New("dns_not_configured")
)

type Record struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied"`
}

// Provider manages DNS records. Zone lookups and record writes may use
// different credentials.
type Provider interface {
	ZoneID(ctx context.Context, name string) (string, error)
	CreateRecord(ctx context.Context, zoneID string, record Record) (Record, error)
}
