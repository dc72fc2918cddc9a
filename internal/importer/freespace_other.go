//go:build !unix

package importer

// freeSpace is unsupported on this platform; the space check is skipped.
func freeSpace(path string) (int64, bool) {
	return 0, false
}
