package postgres

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGeneratorIsMonotonicWithinMillisecond(t *testing.T) {
	gen := NewULIDGenerator()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gen.now = func() time.Time { return fixed }

	prev := gen.Generate()
	for i := 0; i < 100; i++ {
		next := gen.Generate()
		require.Less(t, prev, next)
		prev = next
	}

	id, err := ulid.ParseStrict(prev)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(fixed), id.Time())
}

func TestConvertHelpers(t *testing.T) {
	assert.False(t, timestamptz(time.Time{}).Valid)
	assert.Nil(t, optionalTime(timestamptz(time.Time{})))

	at := time.Date(2025, 3, 1, 14, 0, 0, 0, time.FixedZone("CET", 3600))
	got := optionalTime(timestamptz(at))
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
	assert.Equal(t, time.UTC, got.Location())
}
