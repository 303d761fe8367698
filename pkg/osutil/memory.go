package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

const (
	// This is the default value for cgroup v1's limit_in_bytes. This is not a
	// valid value and indicates that the memory is not restricted.
	// See https://unix.stackexchange.com/questions/420906/what-is-the-value-for-the-cgroups-limit-in-bytes-if-the-memory-is-not-restricted
	unrestrictedMemoryLimit = 9223372036854771712

	// cgroup v2 reports "max" when unrestricted.
	unrestrictedMemoryMax = "max"
)

// Checked in order: cgroup v2, then cgroup v1.
var cgroupMemoryLimitLocations = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// GetTotalMemory returns the total available memory size. The call is
// container-aware.
func GetTotalMemory() uint64 {
	return totalMemory(memory.TotalMemory(), cgroupMemoryLimitLocations)
}

func totalMemory(hostMemory uint64, limitLocations []string) uint64 {
	for _, location := range limitLocations {
		raw, err := os.ReadFile(location)
		if err != nil {
			continue
		}

		limit, ok := parseMemoryLimit(string(raw))
		if !ok {
			continue
		}
		if hostMemory == 0 || limit < hostMemory {
			return limit
		}
		return hostMemory
	}
	return hostMemory
}

func parseMemoryLimit(raw string) (uint64, bool) {
	value := strings.TrimSpace(raw)
	if value == unrestrictedMemoryMax {
		return 0, false
	}

	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 || limit == unrestrictedMemoryLimit {
		return 0, false
	}
	return limit, true
}
