package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrHardlinkFailed = errors.New("failed to create hardlink")
	ErrCrossDevice    = errors.New("cross-device link not supported")
)

// Import methods, recorded in import history.
const (
	MethodHardlink = "hardlink"
	MethodCopy     = "copy"
)

// linkOrCopy places source at dest, preferring a hardlink so the source
// keeps seeding. Falls back to a plain copy across filesystems.
// Returns the method used.
func (s *Service) linkOrCopy(source, dest string) (string, error) {
	err := s.hardlink(source, dest)
	if err == nil {
		return MethodHardlink, nil
	}

	if errors.Is(err, ErrCrossDevice) {
		s.logger.Debug().Msg("Hardlink failed (cross-device), copying instead")
	} else {
		s.logger.Debug().Err(err).Msg("Hardlink failed, copying instead")
	}

	if err := s.copyFile(source, dest); err != nil {
		return "", err
	}
	return MethodCopy, nil
}

func (s *Service) hardlink(source, dest string) error {
	if err := s.ensureDestDir(dest); err != nil {
		return err
	}
	if err := s.removeIfExists(dest); err != nil {
		return err
	}

	if err := os.Link(source, dest); err != nil {
		if isCrossDeviceError(err) {
			return fmt.Errorf("%w: %w", ErrCrossDevice, err)
		}
		return fmt.Errorf("%w: %w", ErrHardlinkFailed, err)
	}

	s.logger.Info().
		Str("source", source).
		Str("dest", dest).
		Msg("Created hardlink")
	return nil
}

func (s *Service) copyFile(source, dest string) error {
	if err := s.ensureDestDir(dest); err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dest) // Clean up partial file
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if info, err := os.Stat(source); err == nil {
		if err := os.Chmod(dest, info.Mode()); err != nil {
			s.logger.Warn().Err(err).Str("path", dest).Msg("Failed to set file permissions")
		}
	}

	s.logger.Info().
		Str("source", source).
		Str("dest", dest).
		Msg("Copied file")
	return nil
}

// deleteUpgradedFile removes the previous library file after an upgrade import.
func (s *Service) deleteUpgradedFile(oldPath, newPath string) {
	if oldPath == "" || oldPath == newPath {
		return
	}
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return
	}

	s.logger.Info().
		Str("old", oldPath).
		Str("new", newPath).
		Msg("Deleting upgraded file")

	if err := os.Remove(oldPath); err != nil {
		s.logger.Warn().Err(err).Str("path", oldPath).Msg("Failed to delete upgraded file")
	}
}

// ensureDestDir creates the destination directory, inheriting the
// parent's permissions where possible.
func (s *Service) ensureDestDir(destPath string) error {
	destDir := filepath.Dir(destPath)

	if info, err := os.Stat(destDir); err == nil && info.IsDir() {
		return nil
	}

	perm := os.FileMode(0o755)
	if parentInfo, err := os.Stat(filepath.Dir(destDir)); err == nil {
		perm = parentInfo.Mode().Perm()
	}

	if err := os.MkdirAll(destDir, perm); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	return nil
}

func (s *Service) removeIfExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		s.logger.Debug().Str("path", path).Msg("Removing existing file for overwrite")
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove existing file: %w", err)
		}
	}
	return nil
}

func isCrossDeviceError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	switch runtime.GOOS {
	case "windows":
		return strings.Contains(errStr, "not on the same disk")
	default:
		// EXDEV: cross-device link
		return strings.Contains(errStr, "cross-device")
	}
}
