package pipeline

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// DiskFreeFunc reports the free bytes of the filesystem holding path.
type DiskFreeFunc func(ctx context.Context, path string) (uint64, error)

// FreeDiskBytes reports the free bytes of the filesystem holding path.
func FreeDiskBytes(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", path, err)
	}
	return usage.Free, nil
}
