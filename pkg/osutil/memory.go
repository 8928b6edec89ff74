package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

const (
	// cgroup v1 reports this for limit_in_bytes when memory isn't restricted
	unrestrictedMemoryLimit = 9223372036854771712

	// cgroup v2 reports this in memory.max when memory isn't restricted
	unrestrictedMemoryMax = "max"
)

var cgroupMemoryLimitLocations = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// GetTotalMemory returns the total available memory size. The call is
// container-aware, preferring the cgroup limit when one is set.
func GetTotalMemory() uint64 {
	totalMemory := memory.TotalMemory()

	for _, location := range cgroupMemoryLimitLocations {
		contents, err := os.ReadFile(location)
		if err != nil {
			continue
		}

		if limit, ok := parseCgroupMemoryLimit(string(contents)); ok {
			return limit
		}
		break
	}

	return totalMemory
}

func parseCgroupMemoryLimit(contents string) (uint64, bool) {
	value := strings.TrimSpace(contents)
	if value == unrestrictedMemoryMax {
		return 0, false
	}

	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 || limit == unrestrictedMemoryLimit {
		return 0, false
	}
	return limit, true
}
