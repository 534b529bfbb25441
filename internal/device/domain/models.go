package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Device is the single persisted record per paying customer. Provisioning
// fields stay empty until the setup job completes.
type Device struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	Email             string            `gorm:"not null" json:"email"`
	StripeSessionID   string            `gorm:"column:stripe_session_id;not null;uniqueIndex" json:"stripe_session_id"`
	Subscription      string            `gorm:"not null;default:''" json:"subscription"`
	LinodeID          int64             `gorm:"column:linode_id;not null;default:0" json:"linode_id"`
	IPAddress         string            `gorm:"column:ip_address;not null;default:''" json:"ip_address"`
	Password          string            `gorm:"not null;default:''" json:"-"`
	Subdomain         string            `gorm:"not null;default:'';index" json:"subdomain"`
	ZoneID            string            `gorm:"column:zone_id;not null;default:''" json:"zone_id"`
	PublishWebhook    *string           `gorm:"column:publish_webhook" json:"publish_webhook,omitempty"`
	PublishEndWebhook *string           `gorm:"column:publish_end_webhook" json:"publish_end_webhook,omitempty"`
	Identifier        string            `gorm:"not null;uniqueIndex" json:"identifier"`
	StreamToken       string            `gorm:"column:stream_token;not null;default:'';index" json:"-"`
	ProvisionMeta     datatypes.JSONMap `gorm:"column:provision_meta" json:"provision_meta,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (Device) TableName() string {
	return "devices"
}

// Provisioned reports whether the setup job already filled the record.
func (d *Device) Provisioned() bool {
	return d != nil && d.IPAddress != ""
}

// HasActiveSession reports whether a stream token is currently issued.
func (d *Device) HasActiveSession() bool {
	return d != nil && d.StreamToken != ""
}

// Keys stored in ProvisionMeta.
const (
	MetaRegion        = "region"
	MetaImageID       = "image_id"
	MetaInstanceLabel = "instance_label"
	MetaDNSRecordID   = "dns_record_id"
)
