package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/streamgate/internal/clock"
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/migration"
	"github.com/smallbiznis/streamgate/internal/observability"
	"github.com/smallbiznis/streamgate/internal/server"
	"github.com/smallbiznis/streamgate/pkg/db"
	"github.com/smallbiznis/streamgate/pkg/redisdb"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisdb.Module,
		clock.Module,
		migration.Module,

		// Background jobs, then the HTTP surface and the domains behind it.
		jobs.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake uses NODE_ID so replicas mint distinct ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
