package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

func (r *repo) FindOne(ctx context.Context, conn *gorm.DB, field domain.Field, value any) (*domain.Device, error) {
	if !field.Valid() {
		return nil, domain.ErrUnknownField
	}

	var device domain.Device
	err := conn.WithContext(ctx).
		Where(map[string]any{string(field): value}).
		Take(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, device *domain.Device) (snowflake.ID, error) {
	if device.ID == 0 {
		device.ID = r.genID.Generate()
	}
	if device.Identifier == "" {
		device.Identifier = uuid.NewString()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	if err := conn.WithContext(ctx).Create(device).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return 0, domain.ErrDuplicate
		}
		return 0, err
	}
	return device.ID, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, set domain.Fields, match domain.Fields) error {
	if len(match) == 0 {
		return domain.ErrEmptyMatch
	}
	if err := set.Validate(); err != nil {
		return err
	}
	if err := match.Validate(); err != nil {
		return err
	}
	if _, ok := set[domain.FieldIdentifier]; ok {
		return domain.ErrImmutableField
	}

	assignments := make(map[string]any, len(set)+1)
	for field, value := range set {
		assignments[string(field)] = value
	}
	assignments["updated_at"] = time.Now().UTC()

	where := make(map[string]any, len(match))
	for field, value := range match {
		where[string(field)] = value
	}

	res := conn.WithContext(ctx).
		Model(&domain.Device{}).
		Where(where).
		Updates(assignments)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return domain.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
