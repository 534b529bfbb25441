package dns

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/smallbiznis/streamgate/internal/cache"
	"github.com/smallbiznis/streamgate/internal/config"
)

const (
	zoneCacheTTL      = 10 * time.Minute
	cloudflareTimeout = 30 * time.Second
)

// Cloudflare uses a read-scoped token for zone lookups and a write-scoped
// token for record creation. A nil client means its token was not set.
type Cloudflare struct {
	reader *cloudflare.API
	writer *cloudflare.API
	zones  cache.Cache[string, string]
}

func NewCloudflare(cfg config.DNSConfig) (*Cloudflare, error) {
	reader, err := newCloudflareAPI(cfg.ReadToken, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cloudflare read client: %w", err)
	}
	writer, err := newCloudflareAPI(cfg.WriteToken, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cloudflare write client: %w", err)
	}
	return &Cloudflare{
		reader: reader,
		writer: writer,
		zones:  cache.NewTTLCache[string, string](),
	}, nil
}

func newCloudflareAPI(token, baseURL string) (*cloudflare.API, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	opts := []cloudflare.Option{
		cloudflare.HTTPClient(&http.Client{Timeout: cloudflareTimeout}),
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		opts = append(opts, cloudflare.BaseURL(base))
	}
	return cloudflare.NewWithAPIToken(token, opts...)
}

func (c *Cloudflare) ZoneID(ctx context.Context, name string) (string, error) {
	if c.reader == nil {
		return "", ErrNotConfigured
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if zoneID, ok := c.zones.Get(name); ok {
		return zoneID, nil
	}

	resp, err := c.reader.ListZonesContext(ctx, cloudflare.WithZoneFilters(name, "", ""))
	if err != nil {
		return "", fmt.Errorf("cloudflare: list zones: %w", err)
	}
	for _, zone := range resp.Result {
		if strings.EqualFold(zone.Name, name) {
			c.zones.Set(name, zone.ID, zoneCacheTTL)
			return zone.ID, nil
		}
	}
	return "", ErrZoneNotFound
}

func (c *Cloudflare) CreateRecord(ctx context.Context, zoneID string, record Record) (Record, error) {
	if c.writer == nil {
		return Record{}, ErrNotConfigured
	}
	if record.TTL == 0 {
		record.TTL = 1 // automatic
	}

	proxied := record.Proxied
	created, err := c.writer.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.CreateDNSRecordParams{
		Type:    record.Type,
		Name:    record.Name,
		Content: record.Content,
		TTL:     record.TTL,
		Proxied: &proxied,
	})
	if err != nil {
		return Record{}, fmt.Errorf("cloudflare: create %s record %s: %w", record.Type, record.Name, err)
	}

	out := Record{
		ID:      created.ID,
		Name:    created.Name,
		Type:    created.Type,
		Content: created.Content,
		TTL:     created.TTL,
	}
	if created.Proxied != nil {
		out.Proxied = *created.Proxied
	}
	return out, nil
}
