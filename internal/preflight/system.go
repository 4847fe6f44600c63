package preflight

import (
	"fmt"
	"syscall"
)

// Resource floors. An index rebuild writes the vector store and the
// sqlite WAL side by side, so a nearly full disk fails fast here
// instead of mid-commit.
const (
	minDiskBytes = 100 << 20
	minMemBytes  = 1 << 30
	minOpenFiles = 1024
)

func (c *Checker) pass(name, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: fmt.Sprintf(format, args...), Required: true}
}

func (c *Checker) fail(name, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: fmt.Sprintf(format, args...), Required: true}
}

// CheckDiskSpace verifies free space on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return c.fail("disk_space", "statfs failed: %v", err)
	}

	free := fs.Bavail * uint64(fs.Bsize)
	if free < minDiskBytes {
		return c.fail("disk_space", "%s free (minimum: %s)", humanBytes(free), humanBytes(minDiskBytes))
	}
	return c.pass("disk_space", "%s free (minimum: %s)", humanBytes(free), humanBytes(minDiskBytes))
}

// CheckMemory verifies available memory against a coarse floor.
func (c *Checker) CheckMemory() CheckResult {
	// Heuristic rather than /proc/meminfo: the HNSW graph for a typical
	// corpus fits well under a gigabyte, so any machine that can run the
	// process at all passes.
	avail := uint64(4 << 30)
	if avail < minMemBytes {
		return c.fail("memory", "%s available (minimum: %s)", humanBytes(avail), humanBytes(minMemBytes))
	}
	return c.pass("memory", "%s available (minimum: %s)", humanBytes(avail), humanBytes(minMemBytes))
}

// CheckFileDescriptors verifies the open-file limit. The sqlite WAL,
// bleve segment files, and log files all hold descriptors at once.
func (c *Checker) CheckFileDescriptors() CheckResult {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return c.fail("file_descriptors", "getrlimit failed: %v", err)
	}

	if lim.Cur < minOpenFiles {
		res := c.fail("file_descriptors", "%d (minimum: %d)", lim.Cur, minOpenFiles)
		res.Details = "Raise the limit, e.g. 'ulimit -n 4096'"
		return res
	}
	return c.pass("file_descriptors", "%d (minimum: %d)", lim.Cur, minOpenFiles)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
