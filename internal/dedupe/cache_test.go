package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vberdnik/marketetl/internal/dedupe"
)

func TestRememberReportsNewKeys(t *testing.T) {
	c := dedupe.NewCache(10, time.Hour)

	require.True(t, c.Remember("a-1"))
	require.False(t, c.Remember("a-1"))
	require.True(t, c.Remember("a-2"))
	require.False(t, c.Remember("a-2"))
	require.False(t, c.Remember("a-1"))
}

func TestRememberEvictsOverCapacity(t *testing.T) {
	c := dedupe.NewCache(2, time.Hour)

	require.True(t, c.Remember("a-1"))
	require.True(t, c.Remember("a-2"))
	require.True(t, c.Remember("a-3"))

	// a-1 was the oldest entry and got evicted, so it counts as new again.
	require.True(t, c.Remember("a-1"))
}

func TestRememberExpiresAfterTTL(t *testing.T) {
	c := dedupe.NewCache(10, 30*time.Millisecond)

	require.True(t, c.Remember("a-1"))
	require.False(t, c.Remember("a-1"))

	time.Sleep(50 * time.Millisecond)
	require.True(t, c.Remember("a-1"))
}
