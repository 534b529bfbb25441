package compute

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/linode/linodego"
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/providers/httpapi"
)

const (
	rootPasswordLength = 32
	linodeTimeout      = 30 * time.Second
)

const (
	passwordLower   = "abcdefghijkmnopqrstuvwxyz"
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits  = "23456789"
	passwordSymbols = "!@#%^*-_=+"
)

// Linode adapts linodego to Provider. BaseURL, when set, is the API host
// without the version segment.
type Linode struct {
	configured bool
	client     *linodego.Client
}

func NewLinode(cfg config.LinodeConfig) *Linode {
	client := linodego.NewClient(&http.Client{Timeout: linodeTimeout})
	token := strings.TrimSpace(cfg.Token)
	client.SetToken(token)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.SetBaseURL(base)
	}
	return &Linode{configured: token != "", client: &client}
}

func (l *Linode) ListRegions(ctx context.Context) ([]Region, error) {
	if !l.configured {
		return nil, ErrNotConfigured
	}
	found, err := l.client.ListRegions(ctx, nil)
	if err != nil {
		return nil, linodeError(err)
	}
	if len(found) == 0 {
		return nil, ErrNoRegions
	}

	regions := make([]Region, 0, len(found))
	for _, r := range found {
		regions = append(regions, Region{ID: r.ID, Country: r.Country, Status: r.Status})
	}
	return regions, nil
}

func (l *Linode) FindImageByLabel(ctx context.Context, label string) (Image, error) {
	if !l.configured {
		return Image{}, ErrNotConfigured
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return Image{}, ErrImageNotFound
	}

	filter, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return Image{}, err
	}
	images, err := l.client.ListImages(ctx, linodego.NewListOptions(0, string(filter)))
	if err != nil {
		return Image{}, linodeError(err)
	}

	// The filter is advisory on some endpoints; require an exact match.
	for _, image := range images {
		if image.Label == label {
			return Image{ID: image.ID, Label: image.Label}, nil
		}
	}
	return Image{}, ErrImageNotFound
}

func (l *Linode) CreateInstance(ctx context.Context, req CreateInstanceRequest) (Instance, error) {
	if !l.configured {
		return Instance{}, ErrNotConfigured
	}
	password, err := generateRootPassword()
	if err != nil {
		return Instance{}, err
	}

	booted := true
	created, err := l.client.CreateInstance(ctx, linodego.InstanceCreateOptions{
		Type:     req.Type,
		Region:   req.Region,
		Image:    req.ImageID,
		Label:    req.Label,
		RootPass: password,
		Booted:   &booted,
	})
	if err != nil {
		return Instance{}, linodeError(err)
	}
	if len(created.IPv4) == 0 || created.IPv4[0] == nil {
		return Instance{}, ErrNoPublicIPv4
	}

	return Instance{
		ID:           int64(created.ID),
		Label:        created.Label,
		Region:       created.Region,
		IPv4:         created.IPv4[0].String(),
		Status:       string(created.Status),
		RootPassword: password,
	}, nil
}

// WaitForStatus polls the instance itself rather than using
// linodego.WaitForInstanceStatus so the interval stays configurable.
func (l *Linode) WaitForStatus(ctx context.Context, id int64, status string, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		inst, err := l.client.GetInstance(ctx, int(id))
		if err != nil {
			return linodeError(err)
		}
		current := string(inst.Status)
		if current == status {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for instance %d to be %s (last %s): %w", id, status, current, ctx.Err())
		case <-ticker.C:
		}
	}
}

// linodeError converts API failures into httpapi errors so callers see one
// provider error shape. Transport and context errors pass through.
func linodeError(err error) error {
	var apiErr *linodego.Error
	if errors.As(err, &apiErr) && apiErr.Code >= http.StatusBadRequest {
		return &httpapi.Error{Provider: "linode", StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}

// generateRootPassword returns a password containing every character class
// Linode's strength check looks for.
func generateRootPassword() (string, error) {
	classes := []string{passwordLower, passwordUpper, passwordDigits, passwordSymbols}
	all := strings.Join(classes, "")

	out := make([]byte, rootPasswordLength)
	for i := range out {
		pool := all
		if i < len(classes) {
			pool = classes[i]
		}
		c, err := randomChar(pool)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Shuffle so the guaranteed classes are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(pool string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return 0, err
	}
	return pool[n.Int64()], nil
}
