package serviceutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyBearer(t *testing.T) {
	testCases := []struct {
		header   string
		expected string
		ok       bool
	}{
		{header: "Bearer s3cret", expected: "s3cret", ok: true},
		{header: "bearer s3cret", expected: "s3cret", ok: true},
		{header: "  Bearer   s3cret ", expected: "s3cret", ok: true},
		{header: "Bearer wrong", expected: "s3cret", ok: false},
		{header: "Basic s3cret", expected: "s3cret", ok: false},
		{header: "s3cret", expected: "s3cret", ok: false},
		{header: "Bearer ", expected: "s3cret", ok: false},
		{header: "", expected: "s3cret", ok: false},
		{header: "Bearer ", expected: "", ok: false},
		{header: "", expected: "", ok: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.ok, VerifyBearer(test.header, test.expected), "header %q", test.header)
	}
}
