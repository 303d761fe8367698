package osutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalMemory(t *testing.T) {
	dir := t.TempDir()

	write := func(name, value string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(value), 0600))
		return path
	}

	const host = 8 << 30

	v2Limited := write("v2-limited", "1073741824\n")
	v2Unlimited := write("v2-unlimited", "max\n")
	v1Limited := write("v1-limited", "2147483648\n")
	v1Unlimited := write("v1-unlimited", strconv.FormatUint(unrestrictedMemoryLimit, 10)+"\n")
	garbage := write("garbage", "lots")
	missing := filepath.Join(dir, "missing")

	for _, tc := range []struct {
		name      string
		locations []string
		expected  uint64
	}{
		{"no cgroup", []string{missing}, host},
		{"cgroup v2", []string{v2Limited, v1Limited}, 1 << 30},
		{"cgroup v2 unrestricted", []string{v2Unlimited, missing}, host},
		{"cgroup v1", []string{missing, v1Limited}, 2 << 30},
		{"cgroup v1 unrestricted", []string{missing, v1Unlimited}, host},
		{"unparseable", []string{garbage}, host},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.EqualValues(t, tc.expected, totalMemory(host, tc.locations))
		})
	}

	// Limits above the host memory are capped
	assert.EqualValues(t, 1<<20, totalMemory(1<<20, []string{v1Limited}))

	assert.NotZero(t, GetTotalMemory())
}
