package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	cursor := Cursor{
		CreatedAt: time.Date(2026, 1, 5, 9, 30, 0, 123456789, time.FixedZone("EST", -5*3600)),
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
	}

	encoded := EncodeCursor(cursor)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(cursor.CreatedAt))
	assert.Equal(t, cursor.ID, decoded.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, raw := range []string{"%%%", "bm90LWEtY3Vyc29y", EncodeCursor(Cursor{})[:4]} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+5))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestPageTrimsBufferRow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Page(rows, 2, identity)
	require.Len(t, page, 2)
	decoded, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, decoded.ID)

	page, next = Page(rows[:2], 2, identity)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
