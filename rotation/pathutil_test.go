package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueTimedNameMonotonic(t *testing.T) {
	var u UniqueTimedName
	fixed := time.Date(2024, 1, 31, 15, 30, 59, 123000000, time.UTC)

	first := u.Next(fixed)
	second := u.Next(fixed)
	third := u.Next(fixed)

	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestUniqueTimedNameRoundTrip(t *testing.T) {
	var u UniqueTimedName
	now := time.Now()
	name := u.Next(now)

	parsed, ok := TryMatchTimedName(name)
	require.True(t, ok)
	assert.WithinDuration(t, now, parsed, time.Second)
}

func TestTryMatchTimedNameRejectsGarbage(t *testing.T) {
	cases := []string{"", "Archive", "20240131T150000", "20240131T150000.123-uuid", "notanumber"}
	for _, c := range cases {
		_, ok := TryMatchTimedName(c)
		assert.False(t, ok, "expected %q to not match", c)
	}
}

func TestTempAndFinalNameRoundTrip(t *testing.T) {
	var u UniqueTimedName
	token := u.Next(time.Now())
	suffix := ".ckmon"

	temp := tempFileName(token, suffix)
	recoveredTemp, ok := tryMatchTempName(temp, suffix)
	require.True(t, ok)
	assert.Equal(t, token, recoveredTemp)

	final := finalFileName(token, suffix)
	recoveredFinal, ok := tryMatchFinalName(final, suffix)
	require.True(t, ok)
	assert.Equal(t, token, recoveredFinal)
}
