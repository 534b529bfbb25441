package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Field names a devices column that callers may look up, set or match on.
type Field string

const (
	FieldEmail             Field = "email"
	FieldStripeSessionID   Field = "stripe_session_id"
	FieldSubscription      Field = "subscription"
	FieldLinodeID          Field = "linode_id"
	FieldIPAddress         Field = "ip_address"
	FieldPassword          Field = "password"
	FieldSubdomain         Field = "subdomain"
	FieldZoneID            Field = "zone_id"
	FieldPublishWebhook    Field = "publish_webhook"
	FieldPublishEndWebhook Field = "publish_end_webhook"
	FieldIdentifier        Field = "identifier"
	FieldStreamToken       Field = "stream_token"
	FieldProvisionMeta     Field = "provision_meta"
)

var knownFields = map[Field]struct{}{
	FieldEmail:             {},
	FieldStripeSessionID:   {},
	FieldSubscription:      {},
	FieldLinodeID:          {},
	FieldIPAddress:         {},
	FieldPassword:          {},
	FieldSubdomain:         {},
	FieldZoneID:            {},
	FieldPublishWebhook:    {},
	FieldPublishEndWebhook: {},
	FieldIdentifier:        {},
	FieldStreamToken:       {},
	FieldProvisionMeta:     {},
}

func (f Field) Valid() bool {
	_, ok := knownFields[f]
	return ok
}

// Fields is a column/value set. It only crosses the repository boundary.
type Fields map[Field]any

// Validate rejects unknown column names.
func (f Fields) Validate() error {
	for field := range f {
		if !field.Valid() {
			return ErrUnknownField
		}
	}
	return nil
}

// Repository is the record store gateway for devices.
type Repository interface {
	FindOne(ctx context.Context, db *gorm.DB, field Field, value any) (*Device, error)
	Insert(ctx context.Context, db *gorm.DB, device *Device) (snowflake.ID, error)
	// Update applies set to the record matching every key in match.
	// Zero matched rows yields ErrNotFound, which lets match act as a
	// compare-and-swap guard.
	Update(ctx context.Context, db *gorm.DB, set Fields, match Fields) error
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrDuplicate         = errors.New("duplicate")
	ErrUnknownField      = errors.New("unknown_field")
	ErrImmutableField    = errors.New("immutable_field")
	ErrEmptyMatch        = errors.New("empty_match")
	ErrInvalidIdentifier = errors.New("invalid_identifier")
)
