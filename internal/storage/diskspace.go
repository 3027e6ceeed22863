package storage

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/monitoring"
)

// DiskSpace describes the filesystem holding recordings. The call recorder
// writes to these roots, not this agent, so running out of space means
// silently losing recordings before they can be matched.
type DiskSpace struct {
	Path           string
	TotalBytes     uint64
	AvailableBytes uint64
}

// GetDiskSpace reports capacity for the filesystem containing path.
func GetDiskSpace(path string) (*DiskSpace, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, err
	}

	return &DiskSpace{
		Path:           path,
		TotalBytes:     stat.Blocks * uint64(stat.Bsize),
		AvailableBytes: stat.Bavail * uint64(stat.Bsize),
	}, nil
}

// FirstUsableRoot returns disk space for the first root that exists,
// falling back to the filesystem root when none do.
func FirstUsableRoot(roots []string) (*DiskSpace, error) {
	for _, root := range roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return GetDiskSpace(root)
		}
	}
	return GetDiskSpace("/")
}

// LowSpaceHealthCheck reports degraded when the recording filesystem drops
// below minFreeBytes. The recorder app stops producing files well before
// the disk is actually full, so this fires early enough to act on.
func LowSpaceHealthCheck(roots []string, minFreeBytes uint64) monitoring.HealthCheck {
	return func() monitoring.CheckResult {
		start := time.Now()

		space, err := FirstUsableRoot(roots)
		if err != nil {
			return monitoring.CheckResult{
				Status:  monitoring.StatusDegraded,
				Message: fmt.Sprintf("Disk space check failed: %v", err),
				Latency: time.Since(start).String(),
			}
		}

		if space.AvailableBytes < minFreeBytes {
			return monitoring.CheckResult{
				Status: monitoring.StatusDegraded,
				Message: fmt.Sprintf("Recording storage low: %d MB free at %s",
					space.AvailableBytes/(1024*1024), space.Path),
				Latency: time.Since(start).String(),
			}
		}

		return monitoring.CheckResult{
			Status: monitoring.StatusHealthy,
			Message: fmt.Sprintf("%d MB free at %s",
				space.AvailableBytes/(1024*1024), space.Path),
			Latency: time.Since(start).String(),
		}
	}
}
