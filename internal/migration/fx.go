package migration

import (
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")

		if cfg.DBType != db.DialectPostgres {
			log.Info("running auto migrate", zap.String("dialect", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
