package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	utc := time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC)

	local := Local(utc)
	require.True(t, local.Equal(utc))
	require.Equal(t, 11, local.Hour())
	require.Equal(t, 30, local.Minute())

	_, offset := local.Zone()
	require.Equal(t, 5*60*60+30*60, offset)
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in       time.Time
		expected string
	}{
		{in: time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC), expected: "2024-01-01 11:30 IST"},
		{in: time.Date(2024, time.June, 30, 20, 15, 0, 0, time.UTC), expected: "2024-07-01 01:45 IST"},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, Format(c.in))
	}
}
