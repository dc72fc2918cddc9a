//go:build unix

package importer

import "golang.org/x/sys/unix"

// freeSpace returns the available bytes on the filesystem containing path.
// The second return is false when the query is unsupported or fails.
func freeSpace(path string) (int64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return int64(stat.Bavail) * int64(stat.Bsize), true
}
