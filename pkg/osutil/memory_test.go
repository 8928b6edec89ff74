package osutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCgroupMemoryLimit(t *testing.T) {
	for _, tc := range []struct {
		contents string
		limit    uint64
		ok       bool
	}{
		{contents: "536870912\n", limit: 536870912, ok: true},
		{contents: "max\n", ok: false},
		{contents: "9223372036854771712\n", ok: false},
		{contents: "0", ok: false},
		{contents: "garbage", ok: false},
	} {
		limit, ok := parseCgroupMemoryLimit(tc.contents)
		assert.Equal(t, tc.ok, ok, tc.contents)
		assert.Equal(t, tc.limit, limit, tc.contents)
	}
}

func TestGetTotalMemory(t *testing.T) {
	assert.NotZero(t, GetTotalMemory())
}
