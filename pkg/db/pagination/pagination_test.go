package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id        snowflake.ID
	createdAt time.Time
}

func rowCursor(r *row) Cursor {
	return Cursor{ID: r.id, CreatedAt: r.createdAt}
}

func TestCursorKeepsTypedPosition(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.FixedZone("WIB", 7*3600))

	token, err := EncodeCursor(Cursor{ID: 1790000000000000001, CreatedAt: at})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1790000000000000001), cursor.ID)
	assert.True(t, at.Equal(cursor.CreatedAt))
	assert.Equal(t, time.UTC, cursor.CreatedAt.Location())
}

func TestCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}

	_, err := EncodeCursor(Cursor{})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestBuildCursorPageInfo(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*row{
		{id: 3, createdAt: base.Add(2 * time.Minute)},
		{id: 2, createdAt: base.Add(time.Minute)},
		{id: 1, createdAt: base},
	}

	info, err := BuildCursorPageInfo(rows, 2, rowCursor)
	require.NoError(t, err)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), cursor.ID)

	info, err = BuildCursorPageInfo(rows, 3, rowCursor)
	require.NoError(t, err)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestPageSizeClamp(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Size())
}
