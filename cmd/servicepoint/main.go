package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicepoint/internal/authorization"
	"github.com/smallbiznis/servicepoint/internal/booking"
	"github.com/smallbiznis/servicepoint/internal/catalog"
	"github.com/smallbiznis/servicepoint/internal/clock"
	"github.com/smallbiznis/servicepoint/internal/config"
	"github.com/smallbiznis/servicepoint/internal/migration"
	"github.com/smallbiznis/servicepoint/internal/observability"
	"github.com/smallbiznis/servicepoint/internal/payment"
	"github.com/smallbiznis/servicepoint/internal/providers/pdf"
	"github.com/smallbiznis/servicepoint/internal/ratelimit"
	"github.com/smallbiznis/servicepoint/internal/server"
	"github.com/smallbiznis/servicepoint/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		authorization.Module,

		// Domains
		catalog.Module,
		pdf.Module,
		booking.Module,
		payment.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
