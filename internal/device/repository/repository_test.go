package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Device{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, Provide(node)
}

func TestInsertGeneratesIdentifier(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()

	id, err := repo.Insert(ctx, conn, &domain.Device{Email: "a@b.com", StripeSessionID: "sess_1"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	found, err := repo.FindOne(ctx, conn, domain.FieldStripeSessionID, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
	assert.Len(t, found.Identifier, 36)
	assert.Empty(t, found.IPAddress)
	assert.Empty(t, found.StreamToken)
	assert.Nil(t, found.PublishWebhook)
}

func TestInsertDuplicateSession(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, conn, &domain.Device{Email: "a@b.com", StripeSessionID: "sess_1"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, conn, &domain.Device{Email: "a@b.com", StripeSessionID: "sess_1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestFindOneErrors(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()

	_, err := repo.FindOne(ctx, conn, domain.FieldIdentifier, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindOne(ctx, conn, domain.Field("id; DROP TABLE devices"), "x")
	assert.ErrorIs(t, err, domain.ErrUnknownField)
}

func TestUpdateActsAsCompareAndSwap(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()

	dev := &domain.Device{Email: "a@b.com", StripeSessionID: "sess_1"}
	_, err := repo.Insert(ctx, conn, dev)
	require.NoError(t, err)

	match := domain.Fields{domain.FieldIdentifier: dev.Identifier, domain.FieldStreamToken: ""}
	require.NoError(t, repo.Update(ctx, conn, domain.Fields{domain.FieldStreamToken: "FIRST"}, match))

	err = repo.Update(ctx, conn, domain.Fields{domain.FieldStreamToken: "SECOND"}, match)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := repo.FindOne(ctx, conn, domain.FieldIdentifier, dev.Identifier)
	require.NoError(t, err)
	assert.Equal(t, "FIRST", found.StreamToken)
}

func TestUpdateClearsNullableWebhooks(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()

	hook := "https://example.com/hook"
	dev := &domain.Device{Email: "a@b.com", StripeSessionID: "sess_1", PublishWebhook: &hook}
	_, err := repo.Insert(ctx, conn, dev)
	require.NoError(t, err)

	err = repo.Update(ctx, conn,
		domain.Fields{domain.FieldPublishWebhook: nil, domain.FieldSubdomain: "ABCD1234"},
		domain.Fields{domain.FieldStripeSessionID: "sess_1"},
	)
	require.NoError(t, err)

	found, err := repo.FindOne(ctx, conn, domain.FieldSubdomain, "ABCD1234")
	require.NoError(t, err)
	assert.Nil(t, found.PublishWebhook)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()
	match := domain.Fields{domain.FieldStripeSessionID: "sess_1"}

	assert.ErrorIs(t, repo.Update(ctx, conn, domain.Fields{domain.FieldIdentifier: "x"}, match), domain.ErrImmutableField)
	assert.ErrorIs(t, repo.Update(ctx, conn, domain.Fields{"nope": 1}, match), domain.ErrUnknownField)
	assert.ErrorIs(t, repo.Update(ctx, conn, domain.Fields{domain.FieldEmail: "x"}, nil), domain.ErrEmptyMatch)
	assert.ErrorIs(t, repo.Update(ctx, conn, domain.Fields{domain.FieldEmail: "x"}, match), domain.ErrNotFound)
}
