package migration

import (
	"testing"

	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrateCreatesDevices(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	assert.True(t, conn.Migrator().HasTable(&devicedomain.Device{}))
	assert.True(t, conn.Migrator().HasColumn(&devicedomain.Device{}, "provision_meta"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
