package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("SELECT * FROM bookings WHERE id = 1 FOR UPDATE"))
	assert.Equal(t, "UPDATE", operationFromSQL("  update bookings set payment_status = 'completed'"))
	assert.Equal(t, "INSERT", operationFromSQL("WITH x AS (SELECT 1) INSERT INTO t VALUES (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGormLoggerLogModeDoesNotMutateOriginal(t *testing.T) {
	base := NewGormLogger(DefaultGormLoggerConfig())
	verbose := base.LogMode(gormlogger.Info).(*GormLogger)

	assert.Equal(t, gormlogger.Warn, base.cfg.Level)
	assert.Equal(t, gormlogger.Info, verbose.cfg.Level)
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "UPDATE bookings SET payment_intent_id = ?", "pi_secret")
	assert.Equal(t, "UPDATE bookings SET payment_intent_id = ?", sql)
	assert.Nil(t, params)
}
