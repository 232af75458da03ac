package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: bookings.id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsRetryableErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization_pgx", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock_pq", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "lock_not_available", err: fmt.Errorf("lock booking: %w", &pgconn.PgError{Code: "55P03"}), want: true},
		{name: "sqlite_busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableErr(tc.err))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(""))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(":memory:"))
	assert.Equal(t, "servicepoint.db", sqliteDSN("servicepoint"))
	assert.Equal(t, "local.db", sqliteDSN("local.db"))
}
